package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockExecutor is an in-process executor for tests and dry runs. It returns
// scripted responses in FIFO order, then falls back to a generic success.
type MockExecutor struct {
	mu        sync.Mutex
	scripted  []scriptedResponse
	calls     int
	CallDelay time.Duration // simulated executor latency
}

type scriptedResponse struct {
	result *Result
	err    error
}

// NewMockExecutor creates a MockExecutor with no scripted responses.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// ScriptResult queues a successful response.
func (e *MockExecutor) ScriptResult(result *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripted = append(e.scripted, scriptedResponse{result: result})
}

// ScriptError queues a failing response.
func (e *MockExecutor) ScriptError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripted = append(e.scripted, scriptedResponse{err: err})
}

// Calls returns how many times Execute has been invoked.
func (e *MockExecutor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Execute pops the next scripted response, or fabricates a success.
func (e *MockExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	if e.CallDelay > 0 {
		select {
		case <-time.After(e.CallDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	e.calls++
	var next *scriptedResponse
	if len(e.scripted) > 0 {
		next = &e.scripted[0]
		e.scripted = e.scripted[1:]
	}
	e.mu.Unlock()

	if next != nil {
		if next.err != nil {
			return nil, next.err
		}
		return next.result, nil
	}

	return &Result{
		Success:       true,
		Output:        fmt.Sprintf("mock output for: %s", req.Description),
		ExecutionTime: e.CallDelay,
		Metadata:      map[string]interface{}{"mock": true},
	}, nil
}
