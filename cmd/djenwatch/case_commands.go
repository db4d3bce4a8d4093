package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"djenwatch/internal/analysis"
	"djenwatch/internal/casestage"
	"djenwatch/internal/comm"
	"djenwatch/internal/services"
	"djenwatch/internal/store"
	"djenwatch/internal/timeline"
)

func newCaseCommand(ctx *commandContext) *cobra.Command {
	caseCmd := &cobra.Command{
		Use:   "case",
		Short: "Manage registered cases and view their timelines",
	}
	caseCmd.AddCommand(newCaseAddCommand(ctx))
	caseCmd.AddCommand(newCaseListCommand(ctx))
	caseCmd.AddCommand(newCaseTimelineCommand(ctx))
	return caseCmd
}

func newCaseAddCommand(ctx *commandContext) *cobra.Command {
	var clientRef, title string
	cmd := &cobra.Command{
		Use:   "add <case-number>",
		Short: "Register a case for monitoring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				nc := store.NewCase{CaseNumber: args[0], Title: title}
				if clientRef != "" {
					client, err := resolveClient(c, st, clientRef)
					if err != nil {
						return err
					}
					nc.ClientID = &client.ID
				}
				created, err := st.AddCase(c, nc)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, created)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered case %s (id %d)\n", comm.FormatCaseNumber(created.CaseNumber), created.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientRef, "client", "", "Owning client id or name")
	cmd.Flags().StringVar(&title, "title", "", "Free-form case title")
	return cmd
}

func newCaseListCommand(ctx *commandContext) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered cases with their current stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, st *store.Store) error {
				cases, err := st.Cases(c, store.CaseFilter{Status: status})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if cases == nil {
						cases = []store.Case{}
					}
					return writeJSON(cmd, cases)
				}
				out := cmd.OutOrStdout()
				if len(cases) == 0 {
					fmt.Fprintln(out, "No cases registered")
					return nil
				}
				clients, err := st.Clients(c)
				if err != nil {
					return err
				}
				names := make(map[int64]string, len(clients))
				for _, cl := range clients {
					names[cl.ID] = cl.Name
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(cases))
				for _, cs := range cases {
					client := ""
					if cs.ClientID != nil {
						client = names[*cs.ClientID]
					}
					stage := casestage.Stage(cs.Status)
					label := "-"
					if cs.Status != "" {
						label = paint(stage.Label(), stageColor(stage), colorize)
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", cs.ID),
						comm.FormatCaseNumber(cs.CaseNumber),
						oneLine(cs.Title, 40),
						client,
						label,
						formatDate(cs.UpdatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Case", "Title", "Client", "Stage", "Updated"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "stage", "", "Only cases at this stage (for example judgment)")
	return cmd
}

type timelineView struct {
	CaseNumber string           `json:"caseNumber"`
	Stage      casestage.Stage  `json:"stage"`
	StageLabel string           `json:"stageLabel"`
	Ladder     string           `json:"ladder"`
	Progress   float64          `json:"progress"`
	Analyzed   int              `json:"analyzed"`
	Pending    int              `json:"pending"`
	FromCache  bool             `json:"fromCache"`
	StageSaved bool             `json:"stageSaved"`
	Events     []timeline.Event `json:"events"`
}

func newCaseTimelineCommand(ctx *commandContext) *cobra.Command {
	var force, offline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "timeline <case-number>",
		Short: "Show the classified timeline, stage and AI summaries of a case",
		Long: "Show the case timeline. The cached timeline is reused while the directory has " +
			"nothing newer; otherwise communications are fetched and new events analyzed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseNumber, err := comm.NormalizeCaseNumber(args[0])
			if err != nil {
				return services.Wrap(services.ErrInvalidFilter, "cli", "case timeline", "", err)
			}
			return ctx.withRuntime(cmd, func(c context.Context, rt *runtime) error {
				view, err := loadTimeline(c, cmd, rt, caseNumber, force, offline)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				renderTimeline(cmd, view, limit)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Discard cached analyses and analyze again")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use stored communications only; no remote calls")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Events to print (0 for all)")
	return cmd
}

func loadTimeline(ctx context.Context, cmd *cobra.Command, rt *runtime, caseNumber string, force, offline bool) (timelineView, error) {
	view := timelineView{CaseNumber: caseNumber}
	progress := func(done, total int) {
		if !rt.cfg.Analysis.Enabled || total == 0 {
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\ranalyzing %d/%d", done, total)
		if done == total {
			fmt.Fprintln(cmd.ErrOrStderr())
		}
	}

	var res analysis.Result
	var err error
	switch {
	case offline:
		var comms []comm.Communication
		comms, err = rt.store.ByCaseNumber(ctx, caseNumber)
		if err == nil {
			if len(comms) == 0 {
				return view, services.Wrap(services.ErrNotFound, "cli", "case timeline", "no stored communications for "+caseNumber, nil)
			}
			res.Events = timeline.BuildEvents(comms)
		}
	case !force && cacheFresh(ctx, rt, caseNumber):
		res.Events, _ = rt.analysis.GetCached(caseNumber)
		res.CacheHit = true
		view.FromCache = true
	default:
		res, err = rt.analysis.FetchAndAnalyze(ctx, caseNumber, progress, force)
	}
	if err != nil && len(res.Events) == 0 {
		return view, err
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	view.Events = res.Events
	view.Analyzed = res.Analyzed
	view.Pending = res.Pending
	view.Stage = casestage.Infer(view.Events)
	view.StageLabel = view.Stage.Label()
	step := casestage.Ladder(view.Events)
	view.Ladder = step.Label()
	view.Progress = casestage.Progress(step)

	registered, err := rt.store.CaseByNumber(ctx, caseNumber)
	switch {
	case err == nil:
		out, err := rt.tracker.Apply(ctx, casestage.CaseRef{ID: registered.ID, CaseNumber: registered.CaseNumber, Status: registered.Status}, view.Events)
		if err != nil {
			return view, err
		}
		view.StageSaved = out.Changed
	case !errors.Is(err, services.ErrNotFound):
		return view, err
	}
	return view, nil
}

// cacheFresh reports whether the cached timeline can be shown without a
// refetch: the entry exists, and it is either within its TTL or the
// directory's newest communication is the one already cached.
func cacheFresh(ctx context.Context, rt *runtime, caseNumber string) bool {
	if _, ok := rt.analysis.GetCached(caseNumber); !ok {
		return false
	}
	if !rt.analysis.Expired(caseNumber) {
		return true
	}
	stale, err := rt.analysis.IsStale(ctx, caseNumber)
	return err == nil && !stale
}

func renderTimeline(cmd *cobra.Command, view timelineView, limit int) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Processo "+comm.FormatCaseNumber(view.CaseNumber), colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Stage:    %s\n", paint(view.StageLabel, stageColor(view.Stage), colorize))
	fmt.Fprintf(out, "Progress: %s %s\n", progressBar(view.Progress, 24), view.Ladder)
	if view.FromCache {
		fmt.Fprintln(out, "Source:   cache")
	}
	if view.Pending > 0 {
		fmt.Fprintf(out, "Pending AI analysis: %d events (run again to continue)\n", view.Pending)
	}
	fmt.Fprintln(out)

	events := view.Events
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		urgency, summary := "", oneLine(e.Description, 80)
		if e.AIAnalysis != nil {
			urgency = paint(string(e.AIAnalysis.Urgency), urgencyColor(e.AIAnalysis.Urgency), colorize)
			summary = oneLine(e.AIAnalysis.Summary, 80)
		}
		kind := e.Type.Label()
		if e.AppellateLevel != nil {
			kind += " (" + e.AppellateLevel.Label() + ")"
		}
		if e.RepublicationOf != "" {
			kind += " [republicação]"
		}
		rows = append(rows, []string{formatDate(e.Date), kind, oneLine(e.Org, 30), urgency, summary})
	}
	fmt.Fprintln(out, renderTable([]string{"Date", "Type", "Org", "Urgency", "Summary"}, rows, nil))
	if hidden := len(view.Events) - len(events); hidden > 0 {
		fmt.Fprintf(out, "%d older events hidden (use --limit 0)\n", hidden)
	}
}
