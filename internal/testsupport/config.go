package testsupport

import (
	"path/filepath"
	"testing"

	"djenwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Analysis is enabled with a dummy key; directory and AI endpoints point at
// unroutable addresses until a test overrides them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.DJEN.BaseURL = "http://127.0.0.1:0"
	cfgVal.LLM.APIKey = "test"
	cfgVal.LLM.BaseURL = "http://127.0.0.1:0/chat"
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithDirectoryURL points the directory client at url (usually an httptest server).
func WithDirectoryURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.DJEN.BaseURL = url
	}
}

// WithLLMURL points the AI client at url.
func WithLLMURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
	}
}

// WithAnalysisDisabled turns AI analysis off.
func WithAnalysisDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Analysis.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
