// Package metrics aggregates per-attempt execution records into per-model
// and system-wide summaries. State is append-only and confined behind the
// collector's mutex.
package metrics

import (
	"sync"
	"time"

	"github.com/calder/foreman/internal/models"
)

// Collector owns the aggregate metric state. The engine appends exactly one
// record per execution attempt, success or failure.
type Collector struct {
	mu               sync.Mutex
	records          []models.ExecutionRecord
	validationPasses int
	perModel         map[string]*models.ModelMetrics
	system           models.SystemMetrics
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		perModel: make(map[string]*models.ModelMetrics),
		system: models.SystemMetrics{
			StartedAt: time.Now().UTC(),
		},
	}
}

// RecordExecution appends one attempt record and updates the rolling
// per-model and system aggregates.
func (c *Collector) RecordExecution(rec models.ExecutionRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, rec)

	c.system.TotalAttempts++
	c.system.TotalDuration += rec.Duration
	if rec.Success {
		c.system.Successes++
	} else {
		c.system.Failures++
	}
	c.system.AvgDuration = c.system.TotalDuration / time.Duration(c.system.TotalAttempts)

	if rec.ModelID != "" {
		mm, ok := c.perModel[rec.ModelID]
		if !ok {
			mm = &models.ModelMetrics{ModelID: rec.ModelID}
			c.perModel[rec.ModelID] = mm
		}
		mm.Requests++
		mm.TotalDuration += rec.Duration
		mm.AvgLatency = mm.TotalDuration / time.Duration(mm.Requests)
		if rec.Success {
			mm.Successes++
		} else {
			mm.Failures++
		}
		mm.SuccessRate = float64(mm.Successes) / float64(mm.Requests)

		mm.ValidationTotal++
		if rec.ValidationPass {
			mm.ValidationPass++
		}
		// Rolling mean of validation scores stands in for quality.
		mm.AvgQuality += (rec.ValidationScore - mm.AvgQuality) / float64(mm.Requests)
	}

	if rec.ValidationPass {
		c.validationPasses++
	}
	c.system.ValidationPassRate = float64(c.validationPasses) / float64(c.system.TotalAttempts)
}

// Summary returns a snapshot of system and per-model aggregates.
func (c *Collector) Summary() models.MetricsSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	perModel := make(map[string]*models.ModelMetrics, len(c.perModel))
	for id, mm := range c.perModel {
		copied := *mm
		perModel[id] = &copied
	}
	return models.MetricsSummary{
		System:   c.system,
		PerModel: perModel,
	}
}

// AttemptCount returns how many records have been appended.
func (c *Collector) AttemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
