package scoring

import (
	"testing"

	"github.com/dishcovery/dishcovery/internal/recall"
)

func ptr(v float64) *float64 { return &v }

func TestWeightOverrideApplyTo(t *testing.T) {
	defaults := RecommendationWeights{
		PreferenceMatch:    0.2,
		FavoriteSimilarity: 0.2,
		BrowseRelevance:    0.15,
		DishQuality:        0.25,
		Diversity:          0.1,
		SearchRelevance:    0.1,
	}

	override := &WeightOverride{
		DishQuality: ptr(0.5),
		Diversity:   ptr(0),
	}
	merged := override.ApplyTo(defaults)

	if merged.DishQuality != 0.5 {
		t.Errorf("DishQuality = %v, want overridden 0.5", merged.DishQuality)
	}
	if merged.Diversity != 0 {
		t.Errorf("Diversity = %v, want overridden 0", merged.Diversity)
	}
	if merged.PreferenceMatch != defaults.PreferenceMatch || merged.SearchRelevance != defaults.SearchRelevance {
		t.Errorf("untouched fields changed: %+v", merged)
	}
	if defaults.DishQuality != 0.25 {
		t.Error("ApplyTo mutated the defaults")
	}
}

func TestWeightOverrideNil(t *testing.T) {
	defaults := RecommendationWeights{DishQuality: 1}
	var override *WeightOverride
	if got := override.ApplyTo(defaults); got != defaults {
		t.Errorf("nil override changed defaults: %+v", got)
	}
}

func TestQuotaOverrideApplyTo(t *testing.T) {
	defaults := recall.Quota{Vector: 0.5, Rule: 0.3, Collaborative: 0.2}

	merged := (&QuotaOverride{Vector: ptr(0.8), Collaborative: ptr(0.1)}).ApplyTo(defaults)
	if merged.Vector != 0.8 || merged.Rule != 0.3 || merged.Collaborative != 0.1 {
		t.Errorf("merged quota = %+v", merged)
	}

	var nilOverride *QuotaOverride
	if got := nilOverride.ApplyTo(defaults); got != defaults {
		t.Errorf("nil override changed defaults: %+v", got)
	}
}
