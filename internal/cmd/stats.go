package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/calder/foreman/internal/history"
	"github.com/calder/foreman/internal/models"
	"github.com/calder/foreman/internal/queue"
)

// NewStatsCommand creates and returns the stats subcommand
func NewStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show execution statistics from the state directory",
		Long: `Read the exported engine state and the execution history database and
print queue counts, per-model aggregates, and recent failures.

Works against the state a running or previously-run engine left behind;
no engine has to be running.`,
		Args: cobra.NoArgs,
		RunE: statsCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .foreman/config.yaml)")
	cmd.Flags().Int("failures", 5, "Number of recent failures to show")

	return cmd
}

// exportedState mirrors the engine's export document. Only fields the stats
// view needs are declared.
type exportedState struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Queue       queue.QueueStats      `json:"queue"`
	Metrics     models.MetricsSummary `json:"metrics"`
}

func statsCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	data, err := os.ReadFile(cfg.ExportPath())
	if err != nil {
		fmt.Fprintf(out, "No exported state at %s\n", cfg.ExportPath())
	} else {
		var state exportedState
		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("exported state is corrupt: %w", err)
		}

		fmt.Fprintf(out, "State exported at %s\n\n", state.GeneratedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Queue:\n")
		fmt.Fprintf(out, "  Pending: %d  Queued: %d  Running: %d\n",
			state.Queue.Pending, state.Queue.Queued, state.Queue.Running)
		fmt.Fprintf(out, "  Completed: %d  Failed: %d  Cancelled: %d\n",
			state.Queue.Completed, state.Queue.Failed, state.Queue.Cancelled)

		fmt.Fprintf(out, "\nExecution:\n")
		fmt.Fprintf(out, "  Attempts: %d  Succeeded: %d  Failed: %d  Validation pass rate: %.0f%%\n",
			state.Metrics.System.TotalAttempts, state.Metrics.System.Successes,
			state.Metrics.System.Failures, state.Metrics.System.ValidationPassRate*100)

		if len(state.Metrics.PerModel) > 0 {
			fmt.Fprintf(out, "\nPer model:\n")
			for id, m := range state.Metrics.PerModel {
				fmt.Fprintf(out, "  %-24s requests=%d success=%.0f%% avg_latency=%s\n",
					id, m.Requests, m.SuccessRate*100, m.AvgLatency.Round(time.Millisecond))
			}
		}
	}

	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		fmt.Fprintf(out, "\nHistory database unavailable: %v\n", err)
		return nil
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("failures")
	failures, err := store.RecentFailures(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(failures) > 0 {
		fmt.Fprintf(out, "\nRecent failures:\n")
		for _, rec := range failures {
			fmt.Fprintf(out, "  %s task=%s model=%s attempt=%d: %s\n",
				rec.Timestamp.Format("15:04:05"), rec.TaskID, rec.ModelID, rec.Attempt, rec.Error)
		}
	}
	return nil
}
