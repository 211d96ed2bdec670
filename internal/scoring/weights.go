// Package scoring ranks candidate dishes for one user. Six normalized
// component scores are combined by configurable weights; experiment
// groups may override any subset of the weights or recall quotas.
package scoring

import (
	"github.com/dishcovery/dishcovery/internal/config"
	"github.com/dishcovery/dishcovery/internal/recall"
)

// RecommendationWeights are the six non-negative multipliers applied
// to the score breakdown terms. They need not sum to 1; a weight of 0
// disables its signal.
type RecommendationWeights struct {
	PreferenceMatch    float64 `yaml:"preference_match"`
	FavoriteSimilarity float64 `yaml:"favorite_similarity"`
	BrowseRelevance    float64 `yaml:"browse_relevance"`
	DishQuality        float64 `yaml:"dish_quality"`
	Diversity          float64 `yaml:"diversity"`
	SearchRelevance    float64 `yaml:"search_relevance"`
}

// WeightsFromConfig maps the configured defaults into weights.
func WeightsFromConfig(cfg config.RecommendConfig) RecommendationWeights {
	return RecommendationWeights{
		PreferenceMatch:    cfg.PreferenceWeight,
		FavoriteSimilarity: cfg.FavoriteWeight,
		BrowseRelevance:    cfg.BrowseWeight,
		DishQuality:        cfg.QualityWeight,
		Diversity:          cfg.DiversityWeight,
		SearchRelevance:    cfg.SearchWeight,
	}
}

// WeightOverride is a partial weight set carried by an experiment
// group. Nil fields keep the default.
type WeightOverride struct {
	PreferenceMatch    *float64 `yaml:"preference_match"`
	FavoriteSimilarity *float64 `yaml:"favorite_similarity"`
	BrowseRelevance    *float64 `yaml:"browse_relevance"`
	DishQuality        *float64 `yaml:"dish_quality"`
	Diversity          *float64 `yaml:"diversity"`
	SearchRelevance    *float64 `yaml:"search_relevance"`
}

// ApplyTo merges the override onto defaults field by field.
func (o *WeightOverride) ApplyTo(defaults RecommendationWeights) RecommendationWeights {
	if o == nil {
		return defaults
	}
	merged := defaults
	if o.PreferenceMatch != nil {
		merged.PreferenceMatch = *o.PreferenceMatch
	}
	if o.FavoriteSimilarity != nil {
		merged.FavoriteSimilarity = *o.FavoriteSimilarity
	}
	if o.BrowseRelevance != nil {
		merged.BrowseRelevance = *o.BrowseRelevance
	}
	if o.DishQuality != nil {
		merged.DishQuality = *o.DishQuality
	}
	if o.Diversity != nil {
		merged.Diversity = *o.Diversity
	}
	if o.SearchRelevance != nil {
		merged.SearchRelevance = *o.SearchRelevance
	}
	return merged
}

// QuotaOverride is a partial recall quota carried by an experiment
// group.
type QuotaOverride struct {
	Vector        *float64 `yaml:"vector"`
	Rule          *float64 `yaml:"rule"`
	Collaborative *float64 `yaml:"collaborative"`
}

// ApplyTo merges the override onto the default quota field by field.
func (o *QuotaOverride) ApplyTo(defaults recall.Quota) recall.Quota {
	if o == nil {
		return defaults
	}
	merged := defaults
	if o.Vector != nil {
		merged.Vector = *o.Vector
	}
	if o.Rule != nil {
		merged.Rule = *o.Rule
	}
	if o.Collaborative != nil {
		merged.Collaborative = *o.Collaborative
	}
	return merged
}
