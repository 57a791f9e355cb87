package models

import "time"

// ExecutionRecord is one execution attempt, success or failure. Exactly one
// record is appended per attempt regardless of which branch the engine took.
type ExecutionRecord struct {
	TaskID          string        `json:"task_id"`
	TaskType        string        `json:"task_type"`
	ModelID         string        `json:"model_id"`
	Attempt         int           `json:"attempt"` // 1-indexed
	Success         bool          `json:"success"`
	Duration        time.Duration `json:"duration"`
	ValidationScore float64       `json:"validation_score"`
	ValidationPass  bool          `json:"validation_pass"`
	Error           string        `json:"error,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

// ModelMetrics aggregates execution records for one backend model.
type ModelMetrics struct {
	ModelID         string        `json:"model_id"`
	Requests        int           `json:"requests"`
	Successes       int           `json:"successes"`
	Failures        int           `json:"failures"`
	TotalDuration   time.Duration `json:"total_duration"`
	AvgLatency      time.Duration `json:"avg_latency"`
	SuccessRate     float64       `json:"success_rate"`
	AvgQuality      float64       `json:"avg_quality"` // mean validation score
	ValidationPass  int           `json:"validation_pass"`
	ValidationTotal int           `json:"validation_total"`
}

// SystemMetrics aggregates execution records across all models.
type SystemMetrics struct {
	TotalAttempts      int           `json:"total_attempts"`
	Successes          int           `json:"successes"`
	Failures           int           `json:"failures"`
	TotalDuration      time.Duration `json:"total_duration"`
	AvgDuration        time.Duration `json:"avg_duration"`
	ValidationPassRate float64       `json:"validation_pass_rate"`
	StartedAt          time.Time     `json:"started_at"`
}

// MetricsSummary is the exported snapshot: global aggregates plus one entry
// per model that has seen at least one attempt.
type MetricsSummary struct {
	System   SystemMetrics            `json:"system"`
	PerModel map[string]*ModelMetrics `json:"per_model"`
}
