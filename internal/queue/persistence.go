package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/calder/foreman/internal/filelock"
	"github.com/calder/foreman/internal/models"
)

// snapshot is the durable queue layout: an ordered JSON list of task records.
type snapshot struct {
	SavedAt time.Time      `json:"saved_at"`
	Tasks   []*models.Task `json:"tasks"`
}

// Snapshot returns copies of every tracked task, ordered by creation time
// then ID for a stable layout.
func (q *TaskQueue) Snapshot() []*models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]*models.Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		tasks = append(tasks, cloneTask(t))
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks
}

// SaveToFile durably writes the queue contents. The write goes through a
// temp file and rename, so a crash mid-save never corrupts the previous
// snapshot.
func (q *TaskQueue) SaveToFile(path string) error {
	snap := snapshot{
		SavedAt: time.Now().UTC(),
		Tasks:   q.Snapshot(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue snapshot: %w", err)
	}
	return filelock.LockAndWrite(path, data)
}

// LoadFromFile reconstructs the queue from a snapshot. Records are restored
// byte-for-byte on their persisted fields; tasks in QUEUED status re-enter
// the waiting heap in creation order, and tasks persisted as RUNNING are
// reset to QUEUED so a crash-interrupted attempt gets picked up again. A
// missing file is not an error.
func (q *TaskQueue) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read queue snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse queue snapshot: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, task := range snap.Tasks {
		if _, exists := q.tasks[task.ID]; exists {
			continue
		}
		// A RUNNING record means the previous process died mid-execution.
		// Hand it back to the waiting set without burning a retry; the
		// interrupted attempt never finished.
		if task.Status == models.StatusRunning {
			task.Status = models.StatusQueued
			task.StartedAt = nil
		}
		q.tasks[task.ID] = task
		if task.Status == models.StatusQueued {
			q.push(task)
		}
	}
	return nil
}
