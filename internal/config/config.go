package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains on-disk locations.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// DJEN contains configuration for the judicial communication directory API.
type DJEN struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	PageSize       int    `toml:"page_size"`
	PageDelayMS    int    `toml:"page_delay_ms"`
	CaseDelayMS    int    `toml:"case_delay_ms"`
	UserAgent      string `toml:"user_agent"`
}

// Sync contains configuration for the polling workflow.
type Sync struct {
	IntervalMinutes int    `toml:"interval_minutes"`
	LookbackDays    int    `toml:"lookback_days"`
	AdvocateName    string `toml:"advocate_name"`
	OABNumber       string `toml:"oab_number"`
	OABState        string `toml:"oab_state"`
}

// Analysis contains configuration for AI analysis passes and their cache.
type Analysis struct {
	Enabled       bool `toml:"enabled"`
	MaxPerPass    int  `toml:"max_per_pass"`
	DelayMS       int  `toml:"delay_ms"`
	CacheTTLHours int  `toml:"cache_ttl_hours"`
	TextLimit     int  `toml:"text_limit"`
}

// LLM contains the AI provider connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic         string `toml:"ntfy_topic"`
	RequestTimeout    int    `toml:"request_timeout"`
	StageChanges      bool   `toml:"stage_changes"`
	NewCommunications bool   `toml:"new_communications"`
	Errors            bool   `toml:"errors"`
}

// API contains configuration for the watch daemon HTTP surface.
type API struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for djenwatch.
//
// Configuration sections by subsystem:
//   - Paths: database, cache, lock and log locations
//   - DJEN: directory API endpoint, timeouts and mandatory pacing
//   - Sync: polling interval and default query window
//   - Analysis: AI analysis limits and cache freshness
//   - LLM: AI provider connection settings
//   - Notifications: ntfy push notification settings
//   - API: watch daemon HTTP bind address
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	DJEN          DJEN          `toml:"djen"`
	Sync          Sync          `toml:"sync"`
	Analysis      Analysis      `toml:"analysis"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/djenwatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("djenwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "djenwatch.db")
}

// LockPath returns the single-instance lock file used by the watch daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "watch.lock")
}

// DJENTimeout returns the per-request timeout for the directory API.
func (c *Config) DJENTimeout() time.Duration {
	return time.Duration(c.DJEN.TimeoutSeconds) * time.Second
}

// PageDelay returns the mandatory delay between result pages.
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.DJEN.PageDelayMS) * time.Millisecond
}

// CaseDelay returns the mandatory delay between case-number queries.
func (c *Config) CaseDelay() time.Duration {
	return time.Duration(c.DJEN.CaseDelayMS) * time.Millisecond
}

// AnalysisDelay returns the mandatory delay between AI analysis calls.
func (c *Config) AnalysisDelay() time.Duration {
	return time.Duration(c.Analysis.DelayMS) * time.Millisecond
}

// CacheTTL returns the age after which a cached analysis should be rechecked.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Analysis.CacheTTLHours) * time.Hour
}

// SyncInterval returns the watch loop period.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
