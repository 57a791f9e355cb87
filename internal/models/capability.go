package models

import "time"

// ModelCapability describes one backend model in the catalog. Catalog fields
// are immutable after registration; only Available and FailureCount change at
// runtime, and only through the selector's MarkSuccess/MarkFailure.
type ModelCapability struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Specialization string        `json:"specialization"` // e.g. "code", "analysis", "narrative"
	AvgLatency     time.Duration `json:"avg_latency"`
	QualityScore   float64       `json:"quality_score"` // 0.0-1.0
	SuccessRate    float64       `json:"success_rate"`  // 0.0-1.0 rolling
	CostPer1K      float64       `json:"cost_per_1k"`
	MaxTokens      int           `json:"max_tokens"`
	Categories     []string      `json:"categories"`

	Available    bool `json:"available"`
	FailureCount int  `json:"failure_count"`
}

// SupportsCategory reports whether the model serves the given task category.
func (m *ModelCapability) SupportsCategory(category string) bool {
	for _, c := range m.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Requirements filters the catalog during model selection. Zero values
// disable the corresponding constraint.
type Requirements struct {
	Category   string
	MaxLatency time.Duration
	MinQuality float64
	MinTokens  int

	// PreferredModel pins selection to this model when it survives the
	// filters, bypassing scoring. The failover chain's current position
	// flows in through here.
	PreferredModel string
}
