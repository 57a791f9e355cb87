package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/calder/foreman/internal/models"
	"github.com/calder/foreman/internal/planfile"
	"github.com/calder/foreman/internal/selector"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a plan file without executing it",
		Long: `Parse and validate a plan file, checking for:
  - Well-formed task sections and frontmatter
  - Required task fields (description, retry limits)
  - Task categories that at least one backend can serve

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePlanFile(args[0], cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	return cmd
}

func validatePlanFile(path string, output io.Writer) error {
	plan, err := planfile.NewParser().ParseFile(path)
	if err != nil {
		return fmt.Errorf("plan is invalid: %w", err)
	}

	sel := selector.New(selector.DefaultCatalog(), 0)

	var problems []string
	for _, task := range plan.Tasks {
		label := firstLine(task.Description)
		if err := task.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("task %q: %v", label, err))
			continue
		}
		if sel.SelectModel(models.Requirements{Category: task.Type}) == nil {
			problems = append(problems, fmt.Sprintf("task %q: no backend serves category %q", label, task.Type))
		}
	}

	fmt.Fprintf(output, "Plan: %s\n", path)
	fmt.Fprintf(output, "  Tasks: %d\n", len(plan.Tasks))
	fmt.Fprintf(output, "  Defaults: type=%s priority=%s max_retries=%d\n",
		plan.Defaults.Type, plan.Defaults.Priority, plan.Defaults.MaxRetries)

	if len(problems) > 0 {
		fmt.Fprintf(output, "\nProblems:\n")
		for _, p := range problems {
			fmt.Fprintf(output, "  - %s\n", p)
		}
		return fmt.Errorf("plan has %d problem(s)", len(problems))
	}

	fmt.Fprintln(output, "\nPlan is valid")
	return nil
}
