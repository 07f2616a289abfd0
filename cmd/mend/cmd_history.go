package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mender/internal/logging"
	"mender/internal/store"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the history ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := root.cfg.HistoryPath()
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			logger, err := root.buildLogger(cmd, false)
			if err != nil {
				return err
			}
			defer root.closeLogger()
			ledger, err := store.OpenLedger(path, logging.For(logger, logging.CategoryStore))
			if err != nil {
				return err
			}
			defer ledger.Close()

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			if runID != "" {
				touches, err := ledger.Touches(runID)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "CYCLE\tTOUCH\tFILE\tARTIFACT")
				for _, t := range touches {
					fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", t.Cycle, t.Touch, t.File, t.Artifact)
				}
				return tw.Flush()
			}

			runs, err := ledger.RecentRuns(limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "RUN\tSTARTED\tENTRY\tOUTCOME\tCYCLES\tTOUCHES\tEXECUTIONS")
			for _, r := range runs {
				outcome := r.Outcome
				if outcome == "" {
					outcome = "incomplete"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\n",
					r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Entry, outcome,
					r.Cycles, r.MaxCycles, r.TotalTouches, r.Executions)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the touches of one run")
	return cmd
}
