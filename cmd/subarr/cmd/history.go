package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/subarr/internal/database"
	"github.com/jmylchreest/subarr/internal/models"
	"github.com/jmylchreest/subarr/internal/observability"
	"github.com/jmylchreest/subarr/internal/repository"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past job outcomes",
	Long: `History lists finished jobs from the local job database, newest
first. One record is written per submitted file when it reaches a
terminal state.`,
	RunE: runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old history records",
	RunE:  runHistoryPrune,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum records to show")
	historyCmd.Flags().String("status", "", "filter by status (completed, failed, skipped)")
	historyPruneCmd.Flags().Int("days", 30, "delete records older than this many days")
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistoryRepo opens the job database for the history subcommands.
func openHistoryRepo() (repository.JobHistoryRepository, *database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.New(cfg.Database, observability.NewLogger(cfg.Logging))
	if err != nil {
		return nil, nil, fmt.Errorf("opening job history database: %w", err)
	}
	return repository.NewJobHistoryRepository(db.DB), db, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	repo, db, err := openHistoryRepo()
	if err != nil {
		return err
	}
	defer db.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	statusFilter, _ := cmd.Flags().GetString("status")

	var records []*models.JobHistory
	if statusFilter != "" {
		status := models.JobStatus(statusFilter)
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", statusFilter)
		}
		records, err = repo.ListByStatus(cmd.Context(), status, limit)
	} else {
		records, err = repo.List(cmd.Context(), limit)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No history records.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPLETED\tSTATUS\tENGINE\tDURATION\tINPUT\tDETAIL")
	for _, r := range records {
		completed := ""
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format("2006-01-02 15:04:05")
		}
		dur := time.Duration(r.DurationMs) * time.Millisecond
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			completed, r.Status, r.Engine, dur.Round(time.Second), r.InputPath, r.Detail)
	}
	return w.Flush()
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	repo, db, err := openHistoryRepo()
	if err != nil {
		return err
	}
	defer db.Close()

	days, _ := cmd.Flags().GetInt("days")
	if days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	removed, err := repo.DeleteOlderThan(cmd.Context(), days)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d records older than %d days.\n", removed, days)
	return nil
}
