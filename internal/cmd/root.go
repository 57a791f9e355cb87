package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for foreman
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foreman",
		Short: "Priority-driven task orchestration engine",
		Long: `Foreman executes markdown plan files by dispatching tasks to model
backends through a bounded worker pool.

It parses plan files, orders tasks by priority, selects the best backend
for each task's category, validates every result, and retries or rotates
backends on failure. Queue state survives restarts via periodic snapshots.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewStatsCommand())

	return cmd
}
