package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTribunalsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tribunals",
		Short: "List the courts that publish to the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *runtime) error {
				tribunals, err := rt.directory.Tribunals(c)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, tribunals)
				}
				rows := make([][]string, 0, len(tribunals))
				for _, t := range tribunals {
					rows = append(rows, []string{t.Code, t.Name, t.State})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Code", "Name", "State"}, rows, nil))
				return nil
			})
		},
	}
}
