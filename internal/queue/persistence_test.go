package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/calder/foreman/internal/models"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")

	q := New(10)
	waiting := newTestTask(models.PriorityHigh)
	retried := newTestTask(models.PriorityCritical)
	done := newTestTask(models.PriorityCritical)

	q.Enqueue(done)
	q.Enqueue(retried)
	q.Enqueue(waiting)

	q.Dequeue() // done (critical, enqueued first)
	q.MarkCompleted(done.ID, map[string]interface{}{"output": "ok"})
	q.Dequeue() // retried
	q.MarkFailed(retried.ID, "transient")
	q.Requeue(retried.ID, nil)

	if err := q.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	restored := New(10)
	if err := restored.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	for _, id := range []string{waiting.ID, retried.ID, done.ID} {
		orig, _ := q.Get(id)
		got, err := restored.Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if got.Status != orig.Status {
			t.Errorf("task %s status = %s, want %s", id, got.Status, orig.Status)
		}
		if got.Priority != orig.Priority {
			t.Errorf("task %s priority = %v, want %v", id, got.Priority, orig.Priority)
		}
		if got.RetryCount != orig.RetryCount {
			t.Errorf("task %s retry count = %d, want %d", id, got.RetryCount, orig.RetryCount)
		}
	}

	// Only QUEUED tasks re-enter the waiting heap.
	want := q.Stats().Queued
	if got := restored.Stats().Queued; got != want {
		t.Errorf("restored queued = %d, want %d", got, want)
	}
	if task := restored.Dequeue(); task == nil {
		t.Error("expected restored queue to serve its queued task")
	}
}

func TestLoadResetsInterruptedRunningTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")

	q := New(10)
	task := newTestTask(models.PriorityNormal)
	q.Enqueue(task)
	if q.Dequeue() == nil {
		t.Fatal("Dequeue returned nil")
	}

	// Save with the task still RUNNING, simulating a process killed
	// mid-execution.
	if err := q.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	restored := New(10)
	if err := restored.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	got, err := restored.Get(task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusQueued {
		t.Errorf("Status = %s, want QUEUED", got.Status)
	}
	if got.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0; an interrupted attempt must not burn a retry", got.RetryCount)
	}
	if got.StartedAt != nil {
		t.Errorf("StartedAt = %v, want nil", got.StartedAt)
	}
	if restored.Dequeue() == nil {
		t.Error("interrupted task must be dequeuable after restart")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	q := New(10)
	if err := q.LoadFromFile(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Errorf("missing snapshot should not be an error, got %v", err)
	}
}

func TestLoadFromFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	q := New(10)
	if err := q.LoadFromFile(path); err == nil {
		t.Error("expected error for corrupt snapshot")
	}
}

func TestSaveIsAtomicOverExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")

	q := New(10)
	q.Enqueue(newTestTask(models.PriorityNormal))
	if err := q.SaveToFile(path); err != nil {
		t.Fatalf("first SaveToFile: %v", err)
	}

	q.Enqueue(newTestTask(models.PriorityNormal))
	if err := q.SaveToFile(path); err != nil {
		t.Fatalf("second SaveToFile: %v", err)
	}

	restored := New(10)
	if err := restored.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if got := restored.Stats().Total; got != 2 {
		t.Errorf("restored total = %d, want 2", got)
	}
}
