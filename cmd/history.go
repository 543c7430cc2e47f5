package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"resume-matcher/internal/db"
	"resume-matcher/internal/helper"
)

var (
	historyLimit int
	historyRun   string
	historyPurge bool
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded ranking runs",
	Long: `History reads the match history database configured under "database".
Without flags it lists the most recent runs; --run shows the ranking of one run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.Debug)
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer database.Close()

		if historyPurge {
			if err := db.DropHistory(ctx, database); err != nil {
				return fmt.Errorf("purging history: %w", err)
			}
			if err := db.InitDB(ctx, database); err != nil {
				return fmt.Errorf("recreating history tables: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History purged.")
			return nil
		}

		store := db.NewStore(database)
		out := cmd.OutOrStdout()

		if historyRun != "" {
			run, entries, err := store.GetRun(ctx, historyRun)
			if err != nil {
				return err
			}
			if historyJSON {
				helper.PrettyPrint(out, map[string]any{"run": run, "entries": entries})
				return nil
			}
			fmt.Fprintf(out, "Run %s at %s (%d candidates, %d terms, %s)\n",
				run.ID, run.CreatedAt.Format("2006-01-02 15:04:05"), run.CandidateCount, run.VocabularySize, run.Scorer)
			for _, e := range entries {
				fmt.Fprintf(out, "%d. %s  %.2f\n", e.Position, e.CandidateID, e.Score)
			}
			return nil
		}

		runs, err := store.RecentRuns(ctx, historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			helper.PrettyPrint(out, runs)
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tCREATED\tCANDIDATES\tTERMS\tSCORER")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.CandidateCount, r.VocabularySize, r.Scorer)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show the ranking of one run")
	historyCmd.Flags().BoolVar(&historyPurge, "purge", false, "delete all recorded runs")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(historyCmd)
}
