// Package agent defines the executor boundary: the external collaborator
// that performs the actual long-running work for a task description.
package agent

import (
	"context"
	"time"
)

// Request holds per-invocation parameters for one executor call.
type Request struct {
	// Description is the task description handed to the executor (required).
	Description string

	// Workspace is the working directory for the call (optional).
	Workspace string

	// Timeout is passed to the executor, which is responsible for honoring
	// it; the engine additionally bounds the call with a context deadline.
	Timeout time.Duration
}

// Result is the executor's report for one call.
type Result struct {
	Success       bool                   `json:"success"`
	Output        string                 `json:"output"`
	Error         string                 `json:"error,omitempty"`
	ExecutionTime time.Duration          `json:"execution_time"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Executor is implemented by concrete backends (direct CLI invocation, mock,
// future sandboxed variants). Implementations are chosen through NewExecutor
// rather than runtime attribute probing, and must be safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}
