package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"djenwatch/internal/services"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch recent communications for every registered case",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *runtime) error {
				report, err := rt.syncer.SyncCases(c)
				if ctx.jsonOutput() {
					if jerr := writeJSON(cmd, report); jerr != nil {
						return jerr
					}
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Synced %d cases: %s\n", report.Cases, report)
				if report.Analyzed > 0 || report.AnalysisFailed > 0 {
					fmt.Fprintf(out, "AI analysis: %d summarized, %d unavailable\n", report.Analyzed, report.AnalysisFailed)
				}
				if report.StageChanges > 0 {
					fmt.Fprintf(out, "Stage changes: %d\n", report.StageChanges)
				}
				for _, cn := range report.FailedCases {
					fmt.Fprintf(out, "Failed: %s\n", cn)
				}
				if err != nil {
					if hint := services.Hint(err); hint != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "hint: %s\n", hint)
					}
				}
				return err
			})
		},
	}
}
