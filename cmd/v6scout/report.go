package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/v6scout/internal/query"
	"github.com/FranksOps/v6scout/internal/report"
	"github.com/FranksOps/v6scout/internal/storage"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		format  string
		filter  storage.Filter
		outcome string
		since   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the stored query log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outcome != "" {
				o, err := query.ParseOutcome(outcome)
				if err != nil {
					return err
				}
				filter.Outcome = o.String()
			}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}

			ctx := cmd.Context()
			backend, err := openBackend(ctx, a.cfg.Storage)
			if err != nil {
				return err
			}
			if backend == nil {
				return errors.New("no query log configured, set storage.driver and storage.dsn")
			}
			defer backend.Close()

			records, err := backend.Query(ctx, filter)
			if err != nil {
				return err
			}
			summary := report.GenerateSummary(records)

			out := cmd.OutOrStdout()
			switch format {
			case "text":
				return report.WriteText(out, summary)
			case "json":
				return report.WriteJSON(out, summary)
			case "html":
				return report.WriteHTML(out, summary)
			default:
				return fmt.Errorf("unknown report format %q", format)
			}
		},
	}

	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "text", "output format: text, json, html")
	f.StringVar(&filter.Domain, "domain", "", "only this domain")
	f.StringVar(&outcome, "outcome", "", "only this outcome: found, empty, unresolved, failed")
	f.StringVar(&filter.RunID, "run", "", "only this run ID")
	f.DurationVar(&since, "since", 0, "only records newer than this age")
	f.IntVar(&filter.Limit, "limit", 0, "maximum number of records (0 = all)")
	return cmd
}
