package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"djenwatch/internal/httpapi"
	"djenwatch/internal/ingest"
	"djenwatch/internal/logging"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var noAPI bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync on an interval and serve the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return ctx.withRuntime(cmd, func(_ context.Context, rt *runtime) error {
				every := interval
				if every <= 0 {
					every = rt.cfg.SyncInterval()
				}
				watcher := ingest.NewWatcher(rt.syncer, rt.cfg.LockPath(), every)

				if !noAPI && rt.cfg.API.Bind != "" {
					opts := []httpapi.Option{
						httpapi.WithStatus(watcher),
						httpapi.WithMetrics(rt.metrics),
						httpapi.WithLogger(rt.logger),
					}
					if rt.cfg.Analysis.Enabled {
						opts = append(opts, httpapi.WithAnalysis(rt.analysis))
					}
					server := httpapi.New(rt.cfg.API.Bind, rt.store, opts...)
					if err := server.Start(signalCtx); err != nil {
						return err
					}
					defer server.Stop()
				}

				rt.logger.Info("djenwatch watch starting",
					logging.String("database", rt.store.Path()),
					logging.Duration("interval", every),
				)
				return watcher.Run(signalCtx)
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Override sync.interval_minutes (for example 15m)")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "Do not start the HTTP API")
	return cmd
}
