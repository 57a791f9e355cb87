package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultSystemPrompt constrains CLI executor output to plain text the
// validator can score. No markdown fences, no prose preamble.
const DefaultSystemPrompt = "You are an autonomous task executor. Produce only the requested artifact content, with no explanations, markdown fences, or commentary."

// CLIExecutor invokes an agent CLI binary for each call. It follows the
// http.Client pattern: create once, use many times. Thread-safe.
type CLIExecutor struct {
	// BinaryPath is the executor binary. Defaults to "claude".
	BinaryPath string

	// SystemPrompt is sent with every invocation. Defaults to
	// DefaultSystemPrompt if empty.
	SystemPrompt string

	// Model pins the backend model flag, when non-empty.
	Model string
}

// NewCLIExecutor creates a CLIExecutor with default settings.
func NewCLIExecutor(binaryPath string) *CLIExecutor {
	if binaryPath == "" {
		binaryPath = "claude"
	}
	return &CLIExecutor{
		BinaryPath:   binaryPath,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Execute runs one CLI invocation under the request timeout. The CLI's
// combined output becomes the result; a non-zero exit becomes an error so
// the recovery layer can classify the failure text.
func (e *CLIExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Description == "" {
		return nil, fmt.Errorf("task description is required")
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	args := []string{}
	systemPrompt := e.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	args = append(args, "--system-prompt", systemPrompt)
	args = append(args, "-p", req.Description)
	if e.Model != "" {
		args = append(args, "--model", e.Model)
	}
	args = append(args, "--output-format", "text")

	binary := e.BinaryPath
	if binary == "" {
		binary = "claude"
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	if req.Workspace != "" {
		cmd.Dir = req.Workspace
	}

	start := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if err != nil {
		// Surface the CLI output in the error: rate-limit and auth
		// signatures live in that text.
		return nil, fmt.Errorf("executor invocation failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	return &Result{
		Success:       true,
		Output:        string(output),
		ExecutionTime: elapsed,
		Metadata: map[string]interface{}{
			"binary": binary,
			"model":  e.Model,
		},
	}, nil
}
