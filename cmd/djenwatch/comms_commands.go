package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"djenwatch/internal/comm"
	"djenwatch/internal/services"
	"djenwatch/internal/store"
	"djenwatch/internal/textutil"
)

func newCommsCommand(ctx *commandContext) *cobra.Command {
	commsCmd := &cobra.Command{
		Use:     "comms",
		Aliases: []string{"communications"},
		Short:   "Inspect and triage stored communications",
	}
	commsCmd.AddCommand(newCommsListCommand(ctx))
	commsCmd.AddCommand(newCommsShowCommand(ctx))
	commsCmd.AddCommand(newCommsReadCommand(ctx))
	commsCmd.AddCommand(newCommsLinkCommand(ctx))
	commsCmd.AddCommand(newCommsLinkClientCommand(ctx))
	commsCmd.AddCommand(newCommsUnlinkCommand(ctx))
	return commsCmd
}

func newCommsListCommand(ctx *commandContext) *cobra.Command {
	var unread bool
	var caseNumber string
	var clientID int64
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored communications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				filter := store.ListFilter{Limit: limit, Offset: offset}
				if unread {
					read := false
					filter.Read = &read
				}
				if strings.TrimSpace(caseNumber) != "" {
					normalized, err := comm.NormalizeCaseNumber(caseNumber)
					if err != nil {
						return services.Wrap(services.ErrInvalidFilter, "cli", "comms list", "", err)
					}
					filter.CaseNumber = normalized
				}
				if clientID > 0 {
					filter.ClientID = &clientID
				}
				items, err := st.List(c, filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if items == nil {
						items = []comm.Communication{}
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderCommunications(items, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&unread, "unread", "u", false, "Only unread communications")
	cmd.Flags().StringVar(&caseNumber, "case", "", "Only this case number")
	cmd.Flags().Int64Var(&clientID, "client", 0, "Only communications linked to this client id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func newCommsShowCommand(ctx *commandContext) *cobra.Command {
	var markRead bool
	cmd := &cobra.Command{
		Use:   "show <hash>",
		Short: "Print one communication in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				item, err := st.Get(c, args[0])
				if err != nil {
					return err
				}
				if markRead && !item.Read {
					if err := st.MarkRead(c, item.Hash); err != nil {
						return err
					}
					item.Read = true
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, item)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader(item.DeclaredType()+" · "+comm.FormatCaseNumber(item.CaseNumber), colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintf(out, "Hash:      %s\n", item.Hash)
				fmt.Fprintf(out, "Date:      %s\n", formatDate(item.AvailabilityDate))
				fmt.Fprintf(out, "Tribunal:  %s\n", item.TribunalCode)
				fmt.Fprintf(out, "Org:       %s\n", item.OrgName)
				if item.ClassName != "" {
					fmt.Fprintf(out, "Class:     %s\n", item.ClassName)
				}
				if len(item.Recipients) > 0 {
					fmt.Fprintf(out, "Parties:   %s\n", strings.Join(item.Recipients, "; "))
				}
				if len(item.Advocates) > 0 {
					fmt.Fprintf(out, "Advocates: %s\n", strings.Join(item.Advocates, "; "))
				}
				if item.Link != "" {
					fmt.Fprintf(out, "Link:      %s\n", item.Link)
				}
				fmt.Fprintf(out, "Read:      %s\n\n", yesNo(item.Read))
				fmt.Fprintln(out, textutil.CleanText(item.Text))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "Mark the communication read after printing")
	return cmd
}

func newCommsReadCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "read [hash...]",
		Short: "Mark communications as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("pass one or more hashes, or --all")
			}
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				hashes := args
				if all {
					read := false
					items, err := st.List(c, store.ListFilter{Read: &read})
					if err != nil {
						return err
					}
					hashes = hashes[:0:0]
					for _, item := range items {
						hashes = append(hashes, item.Hash)
					}
				}
				for _, h := range hashes {
					if err := st.MarkRead(c, h); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d communications read\n", len(hashes))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Mark every unread communication")
	return cmd
}

func newCommsLinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "link <hash> <case-number>",
		Short: "Link a communication to a registered case",
		Long: "Link a communication to a registered case. Other communications of the same " +
			"case number that are not linked yet follow the link.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				target, err := resolveCase(c, st, args[1])
				if err != nil {
					return err
				}
				propagated, err := st.LinkCase(c, args[0], target.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to case %s (%d related communications also linked)\n",
					shortHash(args[0]), comm.FormatCaseNumber(target.CaseNumber), propagated)
				return nil
			})
		},
	}
}

func newCommsLinkClientCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "link-client <hash> <client-id|name>",
		Short: "Link a communication to a client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				client, err := resolveClient(c, st, args[1])
				if err != nil {
					return err
				}
				if err := st.LinkClient(c, args[0], client.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to client %s\n", shortHash(args[0]), client.Name)
				return nil
			})
		},
	}
}

func newCommsUnlinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <hash>",
		Short: "Remove the case and client links of one communication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				if err := st.Unlink(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s\n", shortHash(args[0]))
				return nil
			})
		},
	}
}

// resolveClient accepts a numeric id or an exact (accent and case
// insensitive) client name.
func resolveClient(ctx context.Context, st *store.Store, ref string) (*store.Client, error) {
	clients, err := st.Clients(ctx)
	if err != nil {
		return nil, err
	}
	id, idErr := strconv.ParseInt(strings.TrimSpace(ref), 10, 64)
	key := textutil.Fold(ref)
	for i := range clients {
		if (idErr == nil && clients[i].ID == id) || textutil.Fold(clients[i].Name) == key {
			return &clients[i], nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "cli", "resolve client", ref, nil)
}
