package selector

import (
	"testing"
	"time"

	"github.com/calder/foreman/internal/models"
)

func testCatalog() []*models.ModelCapability {
	return []*models.ModelCapability{
		{
			ID:             "fast",
			Specialization: "analysis",
			AvgLatency:     10 * time.Second,
			QualityScore:   0.75,
			SuccessRate:    0.98,
			MaxTokens:      32000,
			Categories:     []string{"code", "analysis"},
			Available:      true,
		},
		{
			ID:             "strong",
			Specialization: "code",
			AvgLatency:     60 * time.Second,
			QualityScore:   0.95,
			SuccessRate:    0.90,
			MaxTokens:      64000,
			Categories:     []string{"code", "narrative"},
			Available:      true,
		},
	}
}

func TestSelectModelByCategory(t *testing.T) {
	s := New(testCatalog(), 0)

	got := s.SelectModel(models.Requirements{Category: "narrative"})
	if got == nil || got.ID != "strong" {
		t.Fatalf("SelectModel(narrative) = %+v, want strong", got)
	}

	if got := s.SelectModel(models.Requirements{Category: "translation"}); got != nil {
		t.Errorf("SelectModel(translation) = %s, want nil", got.ID)
	}
}

func TestSelectModelPrefersSpecialistOnQuality(t *testing.T) {
	s := New(testCatalog(), 0)

	// Both serve "code"; the quality and specialization terms outweigh the
	// fast model's latency advantage.
	got := s.SelectModel(models.Requirements{Category: "code"})
	if got == nil || got.ID != "strong" {
		t.Fatalf("SelectModel(code) = %+v, want strong", got)
	}
}

func TestSelectModelHonorsPreferred(t *testing.T) {
	s := New(testCatalog(), 0)

	// "strong" normally wins for code; a preferred model that survives the
	// filters overrides scoring.
	got := s.SelectModel(models.Requirements{Category: "code", PreferredModel: "fast"})
	if got == nil || got.ID != "fast" {
		t.Fatalf("SelectModel(code, prefer fast) = %+v, want fast", got)
	}
}

func TestSelectModelIgnoresFilteredPreferred(t *testing.T) {
	s := New(testCatalog(), 0)

	// "fast" does not serve narrative, so the preference cannot apply and
	// scoring picks the survivor.
	got := s.SelectModel(models.Requirements{Category: "narrative", PreferredModel: "fast"})
	if got == nil || got.ID != "strong" {
		t.Fatalf("SelectModel(narrative, prefer fast) = %+v, want strong", got)
	}

}

func TestSelectModelSkipsUnavailablePreferred(t *testing.T) {
	s := New(testCatalog(), 2)

	for i := 0; i < 3; i++ {
		s.MarkFailure("strong")
	}

	got := s.SelectModel(models.Requirements{Category: "code", PreferredModel: "strong"})
	if got == nil || got.ID != "fast" {
		t.Fatalf("SelectModel with disabled preferred = %+v, want fast", got)
	}
}

func TestSelectModelFilters(t *testing.T) {
	s := New(testCatalog(), 0)

	got := s.SelectModel(models.Requirements{Category: "code", MaxLatency: 30 * time.Second})
	if got == nil || got.ID != "fast" {
		t.Fatalf("latency filter: got %+v, want fast", got)
	}

	got = s.SelectModel(models.Requirements{Category: "code", MinQuality: 0.9})
	if got == nil || got.ID != "strong" {
		t.Fatalf("quality filter: got %+v, want strong", got)
	}

	got = s.SelectModel(models.Requirements{Category: "code", MinTokens: 50000})
	if got == nil || got.ID != "strong" {
		t.Fatalf("token filter: got %+v, want strong", got)
	}

	if got = s.SelectModel(models.Requirements{Category: "code", MaxLatency: time.Second}); got != nil {
		t.Errorf("impossible latency: got %s, want nil", got.ID)
	}
}

func TestSelectModelTieKeepsFirstRegistered(t *testing.T) {
	twin := func(id string) *models.ModelCapability {
		return &models.ModelCapability{
			ID:           id,
			AvgLatency:   10 * time.Second,
			QualityScore: 0.8,
			SuccessRate:  0.9,
			Categories:   []string{"code"},
			Available:    true,
		}
	}
	s := New([]*models.ModelCapability{twin("first"), twin("second")}, 0)

	for i := 0; i < 5; i++ {
		got := s.SelectModel(models.Requirements{Category: "code"})
		if got == nil || got.ID != "first" {
			t.Fatalf("tie break pick %d = %+v, want first", i, got)
		}
	}
}

func TestMarkFailureDisablesModel(t *testing.T) {
	s := New(testCatalog(), 2)

	for i := 0; i < 3; i++ {
		s.MarkFailure("fast")
	}

	got := s.SelectModel(models.Requirements{Category: "analysis"})
	if got != nil {
		t.Errorf("disabled model still selected: %s", got.ID)
	}

	// Failures never self-heal; the explicit reset does.
	s.ResetAvailability("fast")
	got = s.SelectModel(models.Requirements{Category: "analysis"})
	if got == nil || got.ID != "fast" {
		t.Fatalf("after reset: got %+v, want fast", got)
	}
	if got.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0 after reset", got.FailureCount)
	}
}

func TestMarkSuccessDecaysFailures(t *testing.T) {
	s := New(testCatalog(), 2)

	s.MarkFailure("fast")
	s.MarkFailure("fast")
	s.MarkSuccess("fast")
	s.MarkFailure("fast") // back to 2, still within threshold

	got := s.SelectModel(models.Requirements{Category: "analysis"})
	if got == nil {
		t.Fatal("model should remain available at the threshold")
	}
}

func TestSelectModelReturnsCopy(t *testing.T) {
	s := New(testCatalog(), 0)

	got := s.SelectModel(models.Requirements{Category: "analysis"})
	got.Available = false

	if again := s.SelectModel(models.Requirements{Category: "analysis"}); again == nil {
		t.Error("caller mutation leaked into the catalog")
	}
}

func TestDefaultCatalogServesAllCategories(t *testing.T) {
	s := New(DefaultCatalog(), 0)

	for _, category := range []string{"code", "analysis", "narrative"} {
		if got := s.SelectModel(models.Requirements{Category: category}); got == nil {
			t.Errorf("no model for category %q", category)
		}
	}
}
