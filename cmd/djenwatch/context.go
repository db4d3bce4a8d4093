package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"djenwatch/internal/analysis"
	"djenwatch/internal/casestage"
	"djenwatch/internal/config"
	"djenwatch/internal/djen"
	"djenwatch/internal/ingest"
	"djenwatch/internal/logging"
	"djenwatch/internal/metrics"
	"djenwatch/internal/notifications"
	"djenwatch/internal/services"
	"djenwatch/internal/services/llm"
	"djenwatch/internal/store"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// runtime holds the services one command invocation needs.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	store     *store.Store
	directory *djen.Client
	llm       *llm.Client
	analysis  *analysis.Service
	notifier  notifications.Service
	tracker   *casestage.Tracker
	syncer    *ingest.Syncer
}

// openStore loads config and opens the database without remote clients.
func (c *commandContext) openStore() (*store.Store, *config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

// newRuntime wires every service from config. Callers must Close it.
func (c *commandContext) newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger, metrics: metrics.New()}

	rt.store, err = store.Open(cfg)
	if err != nil {
		return nil, err
	}
	rt.directory, err = djen.New(djen.ConfigFromApp(cfg),
		djen.WithLogger(logging.NewComponentLogger(logger, "djen")),
		djen.WithMetrics(rt.metrics),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.notifier = notifications.NewService(cfg)

	var summarizer analysis.Summarizer
	if cfg.Analysis.Enabled {
		rt.llm = llm.NewClient(llm.ConfigFromApp(cfg))
		summarizer = analysis.NewLLMSummarizer(rt.llm, cfg.Analysis.TextLimit)
	}
	rt.analysis, err = analysis.New(ctx, rt.store, rt.directory, summarizer, analysis.Options{
		MaxPerPass: cfg.Analysis.MaxPerPass,
		Delay:      cfg.AnalysisDelay(),
		TTL:        cfg.CacheTTL(),
	}, analysis.WithLogger(logger), analysis.WithMetrics(rt.metrics))
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.tracker = casestage.NewTracker(rt.store, logger,
		casestage.WithListener(notifications.StageListener(rt.notifier)),
		casestage.WithMetrics(rt.metrics),
	)
	options := []ingest.Option{
		ingest.WithNotifier(rt.notifier),
		ingest.WithLogger(logger),
		ingest.WithMetrics(rt.metrics),
	}
	if cfg.Analysis.Enabled {
		options = append(options, ingest.WithAnalyzer(rt.analysis))
	}
	rt.syncer = ingest.NewSyncer(rt.store, rt.directory, rt.tracker, ingest.OptionsFromConfig(cfg), options...)
	return rt, nil
}

func (rt *runtime) Close() {
	if rt != nil && rt.store != nil {
		_ = rt.store.Close()
	}
}

func (c *commandContext) withRuntime(cmd *cobra.Command, fn func(context.Context, *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := c.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func (c *commandContext) withStore(cmd *cobra.Command, fn func(context.Context, *store.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, _, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// resolveCase accepts a registered case number in any punctuation.
func resolveCase(ctx context.Context, st *store.Store, raw string) (*store.Case, error) {
	c, err := st.CaseByNumber(ctx, raw)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, fmt.Errorf("case %s is not registered (add it with `djenwatch case add`)", raw)
		}
		return nil, err
	}
	return c, nil
}
