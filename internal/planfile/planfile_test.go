package planfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calder/foreman/internal/models"
)

const samplePlan = `---
default_type: analysis
default_priority: high
max_retries: 2
---

# Release Readiness Plan

Some introduction text that belongs to no task.

## Task 1: Audit error handling

**Type**: code
**Priority**: critical
**Target**: ` + "`audit_report.md`" + `

Walk every package and list swallowed errors.

## Task 2: Summarize findings

Produce a short narrative summary of the audit.

## Notes

This section is not a task.
`

func TestParsePlan(t *testing.T) {
	plan, err := NewParser().Parse(strings.NewReader(samplePlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(plan.Tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(plan.Tasks))
	}
	if plan.Defaults.Type != "analysis" || plan.Defaults.MaxRetries != 2 {
		t.Errorf("Defaults = %+v", plan.Defaults)
	}

	first := plan.Tasks[0]
	if first.Type != "code" {
		t.Errorf("task 1 type = %q, want code (annotation overrides default)", first.Type)
	}
	if first.Priority != models.PriorityCritical {
		t.Errorf("task 1 priority = %v, want CRITICAL", first.Priority)
	}
	if first.TargetPath != "audit_report.md" {
		t.Errorf("task 1 target = %q", first.TargetPath)
	}
	if !strings.Contains(first.Description, "Audit error handling") {
		t.Errorf("task 1 description missing title: %q", first.Description)
	}
	if !strings.Contains(first.Description, "swallowed errors") {
		t.Errorf("task 1 description missing body: %q", first.Description)
	}

	second := plan.Tasks[1]
	if second.Type != "analysis" {
		t.Errorf("task 2 type = %q, want default analysis", second.Type)
	}
	if second.Priority != models.PriorityHigh {
		t.Errorf("task 2 priority = %v, want default HIGH", second.Priority)
	}
	if second.MaxRetries != 2 {
		t.Errorf("task 2 max retries = %d, want plan default 2", second.MaxRetries)
	}
	if strings.Contains(second.Description, "not a task") {
		t.Error("task 2 body bleeds into the Notes section")
	}
}

func TestParseIgnoresHeadingsInCodeBlocks(t *testing.T) {
	plan := `## Task 1: Real task

Run this snippet:

` + "```markdown\n## Task 99: Not a real task\n```" + `

Done.
`
	parsed, err := NewParser().Parse(strings.NewReader(plan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed.Tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(parsed.Tasks))
	}
	if !strings.Contains(parsed.Tasks[0].Description, "Task 99") {
		t.Error("code block content missing from the task body")
	}
}

func TestParseIgnoresAnnotationsInCodeBlocks(t *testing.T) {
	plan := "## Task 1: Only task\n\n```\n**Priority**: critical\n```\n\nBody.\n"

	parsed, err := NewParser().Parse(strings.NewReader(plan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := parsed.Tasks[0].Priority; got != models.PriorityNormal {
		t.Errorf("priority = %v, want default NORMAL (annotation was inside a code block)", got)
	}
}

func TestParseRejectsEmptyPlan(t *testing.T) {
	if _, err := NewParser().Parse(strings.NewReader("# Just a title\n\nNo tasks here.\n")); err == nil {
		t.Error("expected error for a plan without task sections")
	}
}

func TestParseRejectsDuplicateNumbers(t *testing.T) {
	plan := "## Task 1: First\n\nA.\n\n## Task 1: Again\n\nB.\n"
	if _, err := NewParser().Parse(strings.NewReader(plan)); err == nil {
		t.Error("expected error for duplicate task numbers")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.md")
	if err := os.WriteFile(path, []byte(samplePlan), 0o644); err != nil {
		t.Fatal(err)
	}

	plan, err := NewParser().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(plan.Tasks) != 2 {
		t.Errorf("got %d tasks, want 2", len(plan.Tasks))
	}

	if _, err := NewParser().ParseFile(filepath.Join(t.TempDir(), "absent.md")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestTaskMetadataCarriesPlanContext(t *testing.T) {
	plan, err := NewParser().Parse(strings.NewReader("## Task 7: Tagged\n\nBody.\n"))
	if err != nil {
		t.Fatal(err)
	}
	task := plan.Tasks[0]
	if task.Metadata["plan_task_number"] != 7 {
		t.Errorf("plan_task_number = %v, want 7", task.Metadata["plan_task_number"])
	}
	if task.Metadata["plan_title"] != "Tagged" {
		t.Errorf("plan_title = %v", task.Metadata["plan_title"])
	}
}
