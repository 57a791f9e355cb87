package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calder/foreman/internal/agent"
	"github.com/calder/foreman/internal/config"
	"github.com/calder/foreman/internal/engine"
	"github.com/calder/foreman/internal/history"
	"github.com/calder/foreman/internal/logger"
	"github.com/calder/foreman/internal/planfile"
	"github.com/calder/foreman/internal/queue"
	"github.com/calder/foreman/internal/recovery"
	"github.com/calder/foreman/internal/selector"
	"github.com/calder/foreman/internal/validator"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute a plan file",
		Long: `Execute a markdown plan file by queueing its tasks and running them
through the worker pool until every task reaches a terminal state.

Configuration is loaded from .foreman/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  foreman run plan.md
  foreman run --workers 5 plan.md
  foreman run --timeout 30m plan.md
  foreman run --executor mock plan.md   # Dry execution with a mock backend
  foreman run --dry-run plan.md         # Parse and list tasks, do not execute`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .foreman/config.yaml)")
	cmd.Flags().Bool("dry-run", false, "Parse the plan and list tasks without executing")
	cmd.Flags().Int("workers", 0, "Number of worker goroutines (0 = use config)")
	cmd.Flags().String("timeout", "", "Per-task execution timeout (e.g., 30m, 2h)")
	cmd.Flags().String("state-dir", "", "Directory for queue snapshots and exports")
	cmd.Flags().String("executor", "", `Executor kind: "cli" or "mock"`)

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var workersPtr *int
	if cmd.Flags().Changed("workers") {
		workers, _ := cmd.Flags().GetInt("workers")
		workersPtr = &workers
	}
	var timeoutPtr *time.Duration
	if cmd.Flags().Changed("timeout") {
		timeoutStr, _ := cmd.Flags().GetString("timeout")
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("invalid timeout format %q: %w", timeoutStr, err)
		}
		timeoutPtr = &timeout
	}
	var stateDirPtr *string
	if cmd.Flags().Changed("state-dir") {
		stateDir, _ := cmd.Flags().GetString("state-dir")
		stateDirPtr = &stateDir
	}
	var executorPtr *string
	if cmd.Flags().Changed("executor") {
		executorKind, _ := cmd.Flags().GetString("executor")
		executorPtr = &executorKind
	}

	cfg.MergeWithFlags(workersPtr, timeoutPtr, stateDirPtr, executorPtr)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	planPath := args[0]
	fmt.Fprintf(cmd.OutOrStdout(), "Loading plan from %s...\n", planPath)
	plan, err := planfile.NewParser().ParseFile(planPath)
	if err != nil {
		return fmt.Errorf("failed to parse plan: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d task(s)\n", len(plan.Tasks))

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		for _, task := range plan.Tasks {
			fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s: %s\n",
				task.Priority, task.Type, firstLine(task.Description))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Dry run complete, nothing executed")
		return nil
	}

	eng, hist, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
	}

	for _, task := range plan.Tasks {
		if _, err := eng.Submit(task); err != nil {
			return fmt.Errorf("failed to queue task %q: %w", firstLine(task.Description), err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}

	waitForDrain(ctx, eng, cfg.PollInterval)
	eng.Stop()

	stats := eng.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "\nExecution Summary:\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  Total tasks: %d\n", stats.Total)
	fmt.Fprintf(cmd.OutOrStdout(), "  Completed: %d\n", stats.Completed)
	fmt.Fprintf(cmd.OutOrStdout(), "  Failed: %d\n", stats.Failed)
	fmt.Fprintf(cmd.OutOrStdout(), "  Cancelled: %d\n", stats.Cancelled)

	if stats.Failed > 0 {
		return fmt.Errorf("%d task(s) failed", stats.Failed)
	}
	return nil
}

// buildEngine assembles the engine from configuration. The history store is
// returned separately so the caller controls its close.
func buildEngine(cfg *config.Config) (*engine.Engine, *history.Store, error) {
	log := logger.NewConsole(os.Stderr, cfg.LogLevel)

	q := queue.New(cfg.QueueCapacity)
	if err := q.LoadFromFile(cfg.QueuePath()); err != nil {
		log.Warnf("could not restore queue snapshot: %v", err)
	}

	sel := selector.New(selector.DefaultCatalog(), cfg.Selector.MaxModelFailures)
	chain := make([]string, 0)
	for _, m := range sel.Catalog() {
		chain = append(chain, m.ID)
	}
	rot := selector.NewRotationManager(chain, cfg.Rotation.RotateThreshold, cfg.Rotation.BreakerThreshold, log)

	exec, err := agent.NewRegistry().Get(agent.Options{
		Kind:       cfg.ExecutorKind,
		BinaryPath: cfg.ExecutorPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build executor: %w", err)
	}

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.NewStore(cfg.History.DBPath)
		if err != nil {
			// History is observability only; run without it.
			log.Warnf("history store unavailable: %v", err)
			hist = nil
		}
	}

	eng, err := engine.New(engine.Deps{
		Config:    cfg,
		Queue:     q,
		Selector:  sel,
		Rotation:  rot,
		Validator: validator.New(),
		Recovery: recovery.NewManager(
			recovery.NewCircuitBreaker(cfg.Rotation.BreakerThreshold, cfg.Recovery.MaxBackoff),
			nil,
			cfg.Recovery.AllowMockFallback),
		Executor: exec,
		History:  hist,
		Logger:   log,
	})
	if err != nil {
		return nil, nil, err
	}
	return eng, hist, nil
}

// waitForDrain blocks until no task remains schedulable or the context is
// cancelled by a signal.
func waitForDrain(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := eng.Stats()
			if stats.Pending+stats.Queued+stats.Running == 0 {
				return
			}
		}
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadConfigFromDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
