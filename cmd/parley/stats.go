package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/parley/internal/db"
	"github.com/zulandar/parley/internal/stats"
	"github.com/zulandar/parley/internal/store"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		userID     int64
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show case statistics",
		Long:  "Prints per-case start/completion counters, aggregated or for one user.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, configPath, userID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "show one user's counters instead of the aggregate")
	return cmd
}

func runStats(cmd *cobra.Command, configPath string, userID int64) error {
	out := cmd.OutOrStdout()

	cfg, err := loadDurableConfig(configPath)
	if err != nil {
		return err
	}
	gdb, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	recorder := stats.NewRecorder(store.NewDBFrom(gdb))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if userID != 0 {
		rows, err := recorder.ForUser(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintf(out, "No statistics for user %d\n", userID)
			return nil
		}
		fmt.Fprintln(w, "CASE\tSTARTED\tCOMPLETED\tOUT OF MOVES\tAUTO FINISHED")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", r.CaseID, r.Started, r.Completed, r.OutOfMoves, r.AutoFinished)
		}
		return nil
	}

	summary, err := recorder.Summary(cmd.Context())
	if err != nil {
		return err
	}
	if len(summary) == 0 {
		fmt.Fprintln(out, "No statistics recorded yet")
		return nil
	}
	fmt.Fprintln(w, "CASE\tUSERS\tSTARTED\tCOMPLETED\tOUT OF MOVES\tAUTO FINISHED")
	for _, s := range summary {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", s.CaseID, s.Users, s.Started, s.Completed, s.OutOfMoves, s.AutoFinished)
	}
	return nil
}
