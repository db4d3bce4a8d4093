package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"djenwatch/internal/comm"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the analysis cache",
	}
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

type cacheRow struct {
	CaseNumber string `json:"caseNumber"`
	Events     int    `json:"events"`
	Analyzed   int    `json:"analyzed"`
	UpdatedAt  string `json:"updatedAt"`
	Expired    bool   `json:"expired"`
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached case timelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(_ context.Context, rt *runtime) error {
				entries := rt.analysis.Entries()
				rows := make([]cacheRow, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, cacheRow{
						CaseNumber: e.CaseNumber,
						Events:     len(e.Events),
						Analyzed:   len(e.AnalyzedHashes),
						UpdatedAt:  e.Timestamp.Local().Format("2006-01-02 15:04"),
						Expired:    rt.analysis.Expired(e.CaseNumber),
					})
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, rows)
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "Cache is empty")
					return nil
				}
				table := make([][]string, 0, len(rows))
				for _, r := range rows {
					table = append(table, []string{
						comm.FormatCaseNumber(r.CaseNumber),
						fmt.Sprintf("%d", r.Events),
						fmt.Sprintf("%d", r.Analyzed),
						r.UpdatedAt,
						yesNo(r.Expired),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Case", "Events", "Analyzed", "Updated", "Expired"},
					table,
					[]columnAlignment{alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [case-number]",
		Short: "Drop one cached timeline, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *runtime) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					if err := rt.analysis.Invalidate(c, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared cache for %s\n", comm.FormatCaseNumber(args[0]))
					return nil
				}
				n, err := rt.analysis.Clear(c)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d cache entries\n", n)
				return nil
			})
		},
	}
}
