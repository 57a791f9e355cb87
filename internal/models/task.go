// Package models defines the core data types shared across the foreman
// engine: task records, the task state machine, backend capability entries,
// validation results, and execution metrics records.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority orders tasks in the queue. Lower values dequeue first.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
)

// String returns the string representation of Priority.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// ParsePriority converts a priority name to a Priority value.
// Unknown names default to NORMAL.
func ParsePriority(s string) Priority {
	switch s {
	case "CRITICAL", "critical":
		return PriorityCritical
	case "HIGH", "high":
		return PriorityHigh
	case "LOW", "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Status is the lifecycle state of a task record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether a task in this status can never transition
// again. FAILED is only conditionally terminal; see Task.CanRetry.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// legalTransitions encodes the task state machine:
// PENDING → QUEUED → RUNNING → {COMPLETED | FAILED | CANCELLED}.
// FAILED → QUEUED is retry-count gated and handled in Transition.
var legalTransitions = map[Status][]Status{
	StatusPending: {StatusQueued, StatusCancelled},
	StatusQueued:  {StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:  {StatusQueued},
}

// Task is the queued unit of work. The queue exclusively owns task records
// for their queued lifetime and is the only component that flips Status.
type Task struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	TargetPath  string                 `json:"target_path,omitempty"` // artifact the executor should produce
	Priority    Priority               `json:"priority"`
	Status      Status                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	NotBefore   *time.Time             `json:"not_before,omitempty"` // earliest eligible dequeue after a rate-limited retry
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// NewTask constructs a PENDING task with a fresh ID and creation timestamp.
func NewTask(taskType, description string, priority Priority) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Type:        taskType,
		Description: description,
		Priority:    priority,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
		MaxRetries:  3,
	}
}

// Validate checks that the task has all required fields and a consistent
// retry counter.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.Description == "" {
		return fmt.Errorf("task description is required")
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", t.MaxRetries)
	}
	if t.RetryCount < 0 || t.RetryCount > t.MaxRetries {
		return fmt.Errorf("retry count %d outside [0, %d]", t.RetryCount, t.MaxRetries)
	}
	return nil
}

// CanRetry reports whether a failed task may re-enter the queue.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// Eligible reports whether the task may be dequeued at the given instant.
// A task with a NotBefore timestamp in the future stays queued but is
// skipped, so rate-limited retries cannot immediately re-trigger the limit.
func (t *Task) Eligible(now time.Time) bool {
	return t.NotBefore == nil || !now.Before(*t.NotBefore)
}

// Transition applies a status change, enforcing the state machine. The
// FAILED → QUEUED transition increments RetryCount and is rejected once
// retries are exhausted, after which FAILED is terminal.
func (t *Task) Transition(to Status) error {
	from := t.Status
	if from.IsTerminal() {
		return fmt.Errorf("task %s: %s is terminal", t.ID, from)
	}

	allowed := false
	for _, next := range legalTransitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("task %s: illegal transition %s -> %s", t.ID, from, to)
	}

	if from == StatusFailed && to == StatusQueued {
		if !t.CanRetry() {
			return fmt.Errorf("task %s: retries exhausted (%d/%d)", t.ID, t.RetryCount, t.MaxRetries)
		}
		t.RetryCount++
	}

	t.Status = to
	now := time.Now().UTC()
	switch to {
	case StatusRunning:
		t.StartedAt = &now
	case StatusCompleted, StatusFailed, StatusCancelled:
		t.CompletedAt = &now
	}
	return nil
}
