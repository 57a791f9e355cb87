// Package selector picks backend models for tasks and manages the ordered
// failover chain across them.
package selector

import (
	"sync"
	"time"

	"github.com/calder/foreman/internal/models"
)

// Scoring weights for ranking candidate models.
const (
	weightQuality        = 0.40
	weightSuccessRate    = 0.30
	weightInverseLatency = 0.20
	weightSpecialization = 0.10
)

// ModelSelector scores a catalog of backend capabilities against task
// requirements. The catalog is an ordered slice: on tied scores the
// first-registered model wins, which keeps selection deterministic.
type ModelSelector struct {
	mu          sync.Mutex
	catalog     []*models.ModelCapability
	maxFailures int
}

// New creates a selector over the given catalog. Models exceeding
// maxFailures consecutive-ish failures are marked unavailable until reset;
// zero maxFailures means the default of 5.
func New(catalog []*models.ModelCapability, maxFailures int) *ModelSelector {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &ModelSelector{
		catalog:     catalog,
		maxFailures: maxFailures,
	}
}

// SelectModel filters the catalog by availability, category membership,
// latency ceiling, token floor, and quality threshold, then returns the
// highest-scoring survivor (nil when none qualify). A PreferredModel that
// survives the filters wins outright, so the failover chain steers
// selection; when it is filtered out the usual scoring decides.
func (s *ModelSelector) SelectModel(req models.Requirements) *models.ModelCapability {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *models.ModelCapability
	var bestScore float64

	for _, m := range s.catalog {
		if !m.Available {
			continue
		}
		if req.Category != "" && !m.SupportsCategory(req.Category) {
			continue
		}
		if req.MaxLatency > 0 && m.AvgLatency > req.MaxLatency {
			continue
		}
		if req.MinTokens > 0 && m.MaxTokens < req.MinTokens {
			continue
		}
		if m.QualityScore < req.MinQuality {
			continue
		}

		if req.PreferredModel != "" && m.ID == req.PreferredModel {
			copied := *m
			return &copied
		}

		score := s.score(m, req)
		// Strict > keeps the earliest-registered model on ties.
		if best == nil || score > bestScore {
			best = m
			bestScore = score
		}
	}

	if best == nil {
		return nil
	}
	copied := *best
	return &copied
}

// score computes the weighted sum: quality 40%, success rate 30%, inverse
// latency 20%, specialization match 10%.
func (s *ModelSelector) score(m *models.ModelCapability, req models.Requirements) float64 {
	score := weightQuality*m.QualityScore + weightSuccessRate*m.SuccessRate

	// Normalize latency into (0, 1]: 1s -> ~1.0, 60s -> ~0.016.
	latencySecs := m.AvgLatency.Seconds()
	if latencySecs < 1 {
		latencySecs = 1
	}
	score += weightInverseLatency / latencySecs

	if req.Category != "" && m.Specialization == req.Category {
		score += weightSpecialization
	}
	return score
}

// MarkFailure increments the model's failure counter; once the counter
// exceeds the threshold the model is marked unavailable until reset.
func (s *ModelSelector) MarkFailure(modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.find(modelID)
	if m == nil {
		return
	}
	m.FailureCount++
	if m.FailureCount > s.maxFailures {
		m.Available = false
	}
}

// MarkSuccess decays the model's failure counter.
func (s *ModelSelector) MarkSuccess(modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.find(modelID)
	if m == nil {
		return
	}
	if m.FailureCount > 0 {
		m.FailureCount--
	}
}

// ResetAvailability restores a model to the available pool and clears its
// failure counter. This is the explicit operator-level reset; failures never
// self-heal a disabled model.
func (s *ModelSelector) ResetAvailability(modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.find(modelID)
	if m == nil {
		return
	}
	m.Available = true
	m.FailureCount = 0
}

// Catalog returns a copy of the catalog for inspection.
func (s *ModelSelector) Catalog() []models.ModelCapability {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ModelCapability, len(s.catalog))
	for i, m := range s.catalog {
		out[i] = *m
	}
	return out
}

func (s *ModelSelector) find(modelID string) *models.ModelCapability {
	for _, m := range s.catalog {
		if m.ID == modelID {
			return m
		}
	}
	return nil
}

// DefaultCatalog returns the built-in model catalog used when no custom
// catalog is injected.
func DefaultCatalog() []*models.ModelCapability {
	return []*models.ModelCapability{
		{
			ID:             "sonnet",
			Name:           "Sonnet",
			Specialization: "code",
			AvgLatency:     45 * time.Second,
			QualityScore:   0.92,
			SuccessRate:    0.95,
			CostPer1K:      0.003,
			MaxTokens:      64000,
			Categories:     []string{"code", "analysis", "narrative"},
			Available:      true,
		},
		{
			ID:             "haiku",
			Name:           "Haiku",
			Specialization: "analysis",
			AvgLatency:     15 * time.Second,
			QualityScore:   0.80,
			SuccessRate:    0.97,
			CostPer1K:      0.0008,
			MaxTokens:      32000,
			Categories:     []string{"code", "analysis"},
			Available:      true,
		},
		{
			ID:             "opus",
			Name:           "Opus",
			Specialization: "narrative",
			AvgLatency:     90 * time.Second,
			QualityScore:   0.97,
			SuccessRate:    0.93,
			CostPer1K:      0.015,
			MaxTokens:      64000,
			Categories:     []string{"code", "analysis", "narrative"},
			Available:      true,
		},
	}
}
