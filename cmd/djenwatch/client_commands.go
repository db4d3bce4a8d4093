package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"djenwatch/internal/store"
)

func newClientCommand(ctx *commandContext) *cobra.Command {
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Manage clients used for auto-linking",
	}
	clientCmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Register a client; communications naming them as a party are linked automatically",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				created, err := st.AddClient(c, args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, created)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered client %s (id %d)\n", created.Name, created.ID)
				return nil
			})
		},
	})
	clientCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				clients, err := st.Clients(c)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if clients == nil {
						clients = []store.Client{}
					}
					return writeJSON(cmd, clients)
				}
				out := cmd.OutOrStdout()
				if len(clients) == 0 {
					fmt.Fprintln(out, "No clients registered")
					return nil
				}
				rows := make([][]string, 0, len(clients))
				for _, cl := range clients {
					rows = append(rows, []string{fmt.Sprintf("%d", cl.ID), cl.Name, formatDate(cl.CreatedAt)})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Created"}, rows, []columnAlignment{alignRight}))
				return nil
			})
		},
	})
	return clientCmd
}
