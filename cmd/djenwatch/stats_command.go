package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"djenwatch/internal/store"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				stats, err := st.Stats(c)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				rows := [][]string{
					{"Communications", fmt.Sprintf("%d", stats.Total)},
					{"Unread", fmt.Sprintf("%d", stats.Unread)},
					{"Linked", fmt.Sprintf("%d", stats.Linked)},
					{"Unlinked", fmt.Sprintf("%d", stats.Unlinked)},
					{"Cases", fmt.Sprintf("%d", stats.Cases)},
					{"Clients", fmt.Sprintf("%d", stats.Clients)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}
