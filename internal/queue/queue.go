// Package queue implements the priority-ordered, persistable task queue.
//
// The queue exclusively owns task records for their queued lifetime: all
// status transitions go through its methods, under a single mutex, so queue
// state is never observably half-updated.
package queue

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calder/foreman/internal/models"
)

// Common errors returned by the TaskQueue.
var (
	ErrQueueClosed  = errors.New("task queue is closed")
	ErrQueueFull    = errors.New("task queue is full")
	ErrTaskNotFound = errors.New("task not found")
)

// item is a heap entry for one queued task.
type item struct {
	task  *models.Task
	seq   uint64 // enqueue order, final tie-break
	index int
}

// priorityHeap orders items by (priority, created_at, seq): priority strictly
// dominates, ties resolve FIFO by creation time.
type priorityHeap []*item

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.task.Priority != b.task.Priority {
		return a.task.Priority < b.task.Priority
	}
	if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
		return a.task.CreatedAt.Before(b.task.CreatedAt)
	}
	return a.seq < b.seq
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// QueueStats reports task counts by status.
type QueueStats struct {
	Pending   int `json:"pending"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// TaskQueue is a bounded, priority-ordered task queue. It tracks every task
// it has ever accepted (for status lookups and persistence); the capacity
// bound applies to tasks currently waiting for a worker.
type TaskQueue struct {
	mu       sync.Mutex
	capacity int
	heap     priorityHeap
	tasks    map[string]*models.Task
	seq      uint64
	closed   bool
	now      func() time.Time // injectable clock for eligibility tests
}

// New creates a TaskQueue bounded to capacity waiting tasks.
func New(capacity int) *TaskQueue {
	return &TaskQueue{
		capacity: capacity,
		tasks:    make(map[string]*models.Task),
		now:      time.Now,
	}
}

// Enqueue accepts a task and makes it eligible for dequeue. Returns the task
// ID, or ErrQueueFull when the waiting set is at capacity.
func (q *TaskQueue) Enqueue(task *models.Task) (string, error) {
	if task == nil {
		return "", fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return "", fmt.Errorf("invalid task: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}
	if q.heap.Len() >= q.capacity {
		return "", fmt.Errorf("%w: capacity %d reached", ErrQueueFull, q.capacity)
	}
	if _, exists := q.tasks[task.ID]; exists {
		return "", fmt.Errorf("task %s already enqueued", task.ID)
	}

	if task.Status == models.StatusPending {
		if err := task.Transition(models.StatusQueued); err != nil {
			return "", err
		}
	} else if task.Status != models.StatusQueued {
		return "", fmt.Errorf("task %s: cannot enqueue in status %s", task.ID, task.Status)
	}

	q.tasks[task.ID] = task
	q.push(task)
	return task.ID, nil
}

// push adds a tracked task to the waiting heap. Caller holds the lock.
func (q *TaskQueue) push(task *models.Task) {
	q.seq++
	heap.Push(&q.heap, &item{task: task, seq: q.seq})
}

// Dequeue pops the highest-priority eligible task, transitions it to RUNNING
// and stamps StartedAt. Returns nil when no task is eligible. Tasks whose
// NotBefore lies in the future are skipped, not reordered.
func (q *TaskQueue) Dequeue() *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var skipped []*item
	var picked *models.Task

	for q.heap.Len() > 0 {
		it := heap.Pop(&q.heap).(*item)
		if !it.task.Eligible(now) {
			skipped = append(skipped, it)
			continue
		}
		picked = it.task
		break
	}
	for _, it := range skipped {
		heap.Push(&q.heap, it)
	}
	if picked == nil {
		return nil
	}

	picked.NotBefore = nil
	if err := picked.Transition(models.StatusRunning); err != nil {
		// Should be impossible for a heap-resident task; drop it rather than
		// hand a worker a task in an unexpected state.
		return nil
	}
	return cloneTask(picked)
}

// MarkCompleted records a successful result in a single atomic update.
func (q *TaskQueue) MarkCompleted(id string, result map[string]interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err := task.Transition(models.StatusCompleted); err != nil {
		return err
	}
	task.Result = result
	task.Error = ""
	return nil
}

// MarkFailed records a failure in a single atomic update. The error message
// is stored verbatim.
func (q *TaskQueue) MarkFailed(id string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err := task.Transition(models.StatusFailed); err != nil {
		return err
	}
	task.Error = errMsg
	return nil
}

// Requeue returns a failed task to the waiting set, incrementing its retry
// count. A RUNNING task is accepted too: workers requeue straight from a
// failed attempt, and stepping through FAILED here keeps the whole mutation
// one atomic update under the queue lock. notBefore, when non-nil, delays
// eligibility so rate-limited retries back off instead of immediately
// re-triggering the limit. Fails once the task's retries are exhausted.
func (q *TaskQueue) Requeue(id string, notBefore *time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status == models.StatusRunning {
		if err := task.Transition(models.StatusFailed); err != nil {
			return err
		}
	}
	if err := task.Transition(models.StatusQueued); err != nil {
		return err
	}
	task.NotBefore = notBefore
	task.StartedAt = nil
	task.CompletedAt = nil
	q.push(task)
	return nil
}

// Cancel moves a non-terminal task to CANCELLED. A waiting task stays in the
// heap but is filtered out at dequeue time.
func (q *TaskQueue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status == models.StatusQueued {
		q.removeFromHeap(id)
	}
	return task.Transition(models.StatusCancelled)
}

// removeFromHeap drops a task's heap entry. Caller holds the lock.
func (q *TaskQueue) removeFromHeap(id string) {
	for i, it := range q.heap {
		if it.task.ID == id {
			heap.Remove(&q.heap, i)
			return
		}
	}
}

// Get returns a copy of the task record, or ErrTaskNotFound.
func (q *TaskQueue) Get(id string) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return cloneTask(task), nil
}

// Stats returns task counts by status.
func (q *TaskQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s QueueStats
	for _, task := range q.tasks {
		switch task.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusQueued:
			s.Queued++
		case models.StatusRunning:
			s.Running++
		case models.StatusCompleted:
			s.Completed++
		case models.StatusFailed:
			s.Failed++
		case models.StatusCancelled:
			s.Cancelled++
		}
		s.Total++
	}
	return s
}

// Close rejects further enqueues. Waiting tasks remain dequeueable so
// shutdown can drain.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func cloneTask(t *models.Task) *models.Task {
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.Result != nil {
		c.Result = make(map[string]interface{}, len(t.Result))
		for k, v := range t.Result {
			c.Result[k] = v
		}
	}
	return &c
}
