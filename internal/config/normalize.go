package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDJEN()
	c.normalizeSync()
	c.normalizeAnalysis()
	c.normalizeLLM()
	c.normalizeNotifications()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

// normalizeDJEN raises pacing below the upstream minimums instead of
// rejecting the file; the directory throttles aggressive clients.
func (c *Config) normalizeDJEN() {
	c.DJEN.BaseURL = strings.TrimRight(strings.TrimSpace(c.DJEN.BaseURL), "/")
	if c.DJEN.BaseURL == "" {
		c.DJEN.BaseURL = defaultDJENBaseURL
	}
	if c.DJEN.TimeoutSeconds <= 0 {
		c.DJEN.TimeoutSeconds = defaultDJENTimeoutSeconds
	}
	if c.DJEN.PageSize <= 0 {
		c.DJEN.PageSize = defaultDJENPageSize
	}
	if c.DJEN.PageDelayMS < minPageDelayMS {
		c.DJEN.PageDelayMS = minPageDelayMS
	}
	if c.DJEN.CaseDelayMS < minCaseDelayMS {
		c.DJEN.CaseDelayMS = minCaseDelayMS
	}
	c.DJEN.UserAgent = strings.TrimSpace(c.DJEN.UserAgent)
	if c.DJEN.UserAgent == "" {
		c.DJEN.UserAgent = defaultDJENUserAgent
	}
}

func (c *Config) normalizeSync() {
	if c.Sync.IntervalMinutes <= 0 {
		c.Sync.IntervalMinutes = defaultSyncIntervalMinutes
	}
	if c.Sync.LookbackDays < 0 {
		c.Sync.LookbackDays = 0
	}
	c.Sync.AdvocateName = strings.TrimSpace(c.Sync.AdvocateName)
	c.Sync.OABNumber = strings.TrimSpace(c.Sync.OABNumber)
	c.Sync.OABState = strings.ToUpper(strings.TrimSpace(c.Sync.OABState))
}

func (c *Config) normalizeAnalysis() {
	if c.Analysis.MaxPerPass <= 0 {
		c.Analysis.MaxPerPass = defaultAnalysisMaxPerPass
	}
	if c.Analysis.DelayMS < minAnalysisDelayMS {
		c.Analysis.DelayMS = minAnalysisDelayMS
	}
	if c.Analysis.CacheTTLHours <= 0 {
		c.Analysis.CacheTTLHours = defaultAnalysisCacheTTLHours
	}
	if c.Analysis.TextLimit <= 0 {
		c.Analysis.TextLimit = defaultAnalysisTextLimit
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("DJENWATCH_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DJENWATCH_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
