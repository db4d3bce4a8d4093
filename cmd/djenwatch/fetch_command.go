package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"djenwatch/internal/comm"
	"djenwatch/internal/djen"
	"djenwatch/internal/ingest"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var filter djen.Filter
	var medium string
	var days int
	var mine bool
	var noSave bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Query the directory and save matching communications",
		Long: "Query the judicial communication directory. Results are saved and auto-linked " +
			"to registered cases and clients unless --no-save is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(c context.Context, rt *runtime) error {
				f := filter
				f.Medium = comm.Medium(strings.ToUpper(strings.TrimSpace(medium)))
				if mine {
					adv := ingest.OptionsFromConfig(rt.cfg).Advocate
					if adv.OABNumber == "" && adv.AdvocateName == "" {
						return errors.New("--mine requires sync.oab_number or sync.advocate_name in the config")
					}
					f.OABNumber, f.OABState, f.AdvocateName = adv.OABNumber, adv.OABState, adv.AdvocateName
				}
				if days > 0 && f.DateFrom == "" {
					f.DateFrom = djen.LookbackFrom(time.Now(), days)
				}
				if isEmptyFilter(f) {
					return errors.New("at least one filter is required (see --help)")
				}
				if err := f.Validate(); err != nil {
					return err
				}

				var report ingest.Report
				var err error
				if noSave {
					var res djen.Result
					res, err = rt.directory.FetchAll(c, f, nil)
					report = ingest.Report{Found: len(res.Items), Errors: res.Errors, Items: res.Items}
				} else {
					report, err = rt.syncer.Import(c, f, nil)
				}
				if err != nil && len(report.Items) == 0 {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderCommunications(report.Items, shouldColorize(out)))
				fmt.Fprintln(out, report.String())
				if report.Found >= djen.ResultCap {
					fmt.Fprintf(out, "The directory caps broad searches at %d results; narrow the filter to see everything.\n", djen.ResultCap)
				}
				return err
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&filter.CaseNumber, "case", "", "Case number (CNJ, any punctuation)")
	flags.StringVar(&filter.OABNumber, "oab", "", "Advocate OAB registration number")
	flags.StringVar(&filter.OABState, "uf", "", "State of the OAB registration")
	flags.StringVar(&filter.AdvocateName, "advocate", "", "Advocate name")
	flags.StringVar(&filter.PartyName, "party", "", "Party name")
	flags.StringVar(&filter.TribunalCode, "tribunal", "", "Tribunal code (for example TJSP)")
	flags.StringVar(&filter.DateFrom, "from", "", "Availability date lower bound (YYYY-MM-DD)")
	flags.StringVar(&filter.DateTo, "to", "", "Availability date upper bound (YYYY-MM-DD)")
	flags.StringVar(&medium, "medium", "", "Medium: D (diary) or E (edict)")
	flags.IntVar(&days, "days", 0, "Look back this many days when --from is not given")
	flags.BoolVar(&mine, "mine", false, "Use the advocate configured under [sync]")
	flags.BoolVar(&noSave, "no-save", false, "Print results without saving them")
	return cmd
}

func isEmptyFilter(f djen.Filter) bool {
	return f.CaseNumber == "" && f.OABNumber == "" && f.AdvocateName == "" && f.PartyName == "" &&
		f.TribunalCode == "" && f.DateFrom == "" && f.DateTo == "" && f.CommunicationNumber == ""
}

func renderCommunications(items []comm.Communication, colorize bool) string {
	if len(items) == 0 {
		return "No communications"
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		hash := shortHash(item.Hash)
		if !item.Read {
			hash = paint(hash, ansiBold, colorize)
		}
		linked := ""
		if item.LinkedCaseID != nil {
			linked = "case"
		} else if item.LinkedClientID != nil {
			linked = "client"
		}
		rows = append(rows, []string{
			hash,
			formatDate(item.AvailabilityDate),
			comm.FormatCaseNumber(item.CaseNumber),
			item.TribunalCode,
			oneLine(item.DeclaredType(), 24),
			oneLine(item.OrgName, 40),
			linked,
		})
	}
	return renderTable(
		[]string{"Hash", "Date", "Case", "Tribunal", "Type", "Org", "Linked"},
		rows,
		nil,
	)
}
