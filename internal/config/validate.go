package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDJEN(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDJEN() error {
	parsed, err := url.Parse(c.DJEN.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("djen.base_url must be an absolute URL, got %q", c.DJEN.BaseURL)
	}
	if c.DJEN.PageSize > 100 {
		return errors.New("djen.page_size must be <= 100")
	}
	return ensurePositiveMap(map[string]int{
		"djen.timeout_seconds": c.DJEN.TimeoutSeconds,
		"djen.page_size":       c.DJEN.PageSize,
	})
}

func (c *Config) validateSync() error {
	if c.Sync.OABNumber != "" && c.Sync.OABState == "" {
		return errors.New("sync.oab_state must be set when sync.oab_number is set")
	}
	if c.Sync.OABState != "" && len(c.Sync.OABState) != 2 {
		return fmt.Errorf("sync.oab_state must be a two-letter state code, got %q", c.Sync.OABState)
	}
	return ensurePositiveMap(map[string]int{
		"sync.interval_minutes": c.Sync.IntervalMinutes,
	})
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.Enabled && strings.TrimSpace(c.LLM.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/djenwatch/config.toml"
		}
		return fmt.Errorf("llm.api_key is required when analysis.enabled is true. Set OPENROUTER_API_KEY, disable analysis, or edit %s (create with 'djenwatch config init')", defaultPath)
	}
	return ensurePositiveMap(map[string]int{
		"analysis.max_per_pass":    c.Analysis.MaxPerPass,
		"analysis.cache_ttl_hours": c.Analysis.CacheTTLHours,
		"analysis.text_limit":      c.Analysis.TextLimit,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
