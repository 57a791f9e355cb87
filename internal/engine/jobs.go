package engine

import (
	"context"
	"time"

	"github.com/calder/foreman/internal/filelock"
	"github.com/calder/foreman/internal/models"
	"github.com/calder/foreman/internal/queue"
)

// exportState is the JSON document the export job writes. Consumers are
// external monitors; the engine never reads it back.
type exportState struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Queue       queue.QueueStats      `json:"queue"`
	Metrics     models.MetricsSummary `json:"metrics"`
	Tasks       []*models.Task        `json:"tasks"`
}

// exportJob periodically writes a combined queue+metrics snapshot for
// external observers. Each write is atomic so a reader never sees a
// half-written file.
func (e *Engine) exportJob(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.exportState()
		}
	}
}

func (e *Engine) exportState() {
	state := exportState{
		GeneratedAt: time.Now().UTC(),
		Queue:       e.queue.Stats(),
		Metrics:     e.metrics.Summary(),
		Tasks:       e.queue.Snapshot(),
	}
	if err := filelock.AtomicWriteJSON(e.cfg.ExportPath(), state); err != nil {
		e.log.Warnf("state export failed: %v", err)
	}
}

// persistJob periodically saves the durable queue snapshot. The final save
// on Stop covers whatever the last tick missed.
func (e *Engine) persistJob(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.queue.SaveToFile(e.cfg.QueuePath()); err != nil {
				e.log.Warnf("queue persistence failed: %v", err)
			}
		}
	}
}

// progressJob logs throughput and a remaining-work estimate at a coarse
// interval. Rate is computed over the window since the previous tick, not
// since startup, so it tracks recent behavior.
func (e *Engine) progressJob(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ProgressInterval)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.reportProgress(now.Sub(lastTick))
			lastTick = now
		}
	}
}

func (e *Engine) reportProgress(window time.Duration) {
	stats := e.queue.Stats()
	completed := stats.Completed

	e.mu.Lock()
	delta := completed - e.completed
	e.completed = completed
	e.mu.Unlock()

	remaining := stats.Queued + stats.Running + stats.Pending
	perMinute := 0.0
	if window > 0 {
		perMinute = float64(delta) / window.Minutes()
	}

	var eta time.Duration
	if perMinute > 0 {
		eta = time.Duration(float64(remaining)/perMinute*60) * time.Second
	}
	e.log.LogProgress(completed, remaining, perMinute, eta)
}
