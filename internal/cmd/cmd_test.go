package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testPlan = `## Task 1: Summarize the codebase

**Type**: analysis
**Priority**: high

Read every package and produce a summary.

## Task 2: Draft release notes

**Type**: narrative

Turn the summary into release notes.
`

func writeTestPlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`state_dir: %s
executor_kind: mock
poll_interval: 5ms
history:
  enabled: false
`, filepath.Join(dir, "state"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateCommandAcceptsGoodPlan(t *testing.T) {
	planPath := writeTestPlan(t, testPlan)

	var out bytes.Buffer
	if err := validatePlanFile(planPath, &out); err != nil {
		t.Fatalf("validatePlanFile: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "Tasks: 2") {
		t.Errorf("output missing task count:\n%s", out.String())
	}
}

func TestValidateCommandRejectsUnservedCategory(t *testing.T) {
	planPath := writeTestPlan(t, "## Task 1: Weird\n\n**Type**: telepathy\n\nBody.\n")

	var out bytes.Buffer
	if err := validatePlanFile(planPath, &out); err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(out.String(), "telepathy") {
		t.Errorf("output does not name the bad category:\n%s", out.String())
	}
}

func TestValidateCommandRejectsMissingFile(t *testing.T) {
	var out bytes.Buffer
	if err := validatePlanFile(filepath.Join(t.TempDir(), "absent.md"), &out); err == nil {
		t.Error("expected error for missing plan")
	}
}

func TestRunCommandDryRun(t *testing.T) {
	planPath := writeTestPlan(t, testPlan)
	configPath := writeTestConfig(t)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"run", "--config", configPath, "--dry-run", planPath})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "Dry run complete") {
		t.Errorf("output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Summarize the codebase") {
		t.Errorf("dry run does not list tasks:\n%s", out.String())
	}
}

func TestRunCommandExecutesWithMock(t *testing.T) {
	planPath := writeTestPlan(t, testPlan)
	configPath := writeTestConfig(t)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"run", "--config", configPath, "--workers", "2", planPath})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "Completed: 2") {
		t.Errorf("summary missing completions:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Failed: 0") {
		t.Errorf("summary reports failures:\n%s", out.String())
	}
}

func TestRunCommandRejectsBadTimeout(t *testing.T) {
	planPath := writeTestPlan(t, testPlan)
	configPath := writeTestConfig(t)

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", configPath, "--timeout", "whenever", planPath})

	if err := root.Execute(); err == nil {
		t.Error("expected error for malformed timeout")
	}
}

func TestStatsCommandWithoutState(t *testing.T) {
	configPath := writeTestConfig(t)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"stats", "--config", configPath})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "No exported state") {
		t.Errorf("output:\n%s", out.String())
	}
}
