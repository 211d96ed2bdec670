package recall

import (
	"context"

	"github.com/dishcovery/dishcovery/internal/feature"
)

// Rule score weights. Tag overlap dominates, canteen match is a
// smaller nudge, favorite tag weights contribute at half strength so a
// heavy browse/favorite profile still surfaces through the rule path.
const (
	ruleTagWeight      = 2.0
	ruleCanteenWeight  = 1.5
	ruleFavoriteWeight = 0.5
)

// RuleStrategy applies hard constraints (allergens, price range) and
// ranks survivors by preference match.
type RuleStrategy struct {
	dishes DishSource
}

func NewRuleStrategy(dishes DishSource) *RuleStrategy {
	return &RuleStrategy{dishes: dishes}
}

func (s *RuleStrategy) Name() string { return StrategyRule }

func (s *RuleStrategy) Recall(ctx context.Context, user *feature.UserFeatures, poolSize int) ([]string, error) {
	if poolSize <= 0 {
		return nil, nil
	}

	dishes, err := s.dishes.ListDishes(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]rankedDish, 0, len(dishes))
	for _, d := range dishes {
		if d.ContainsAnyAllergen(user.Allergens) {
			continue
		}
		if outsidePriceRange(d, user.Preferences) {
			continue
		}
		rows = append(rows, rankedDish{
			id:          d.ID,
			score:       ruleScore(d, user),
			reviewCount: d.ReviewCount,
		})
	}

	sortRanked(rows)
	return topIDs(rows, poolSize), nil
}

func outsidePriceRange(d *feature.DishFeatures, prefs *feature.UserPreferenceFeatures) bool {
	if prefs == nil {
		return false
	}
	if prefs.PriceMin != nil && d.Price < *prefs.PriceMin {
		return true
	}
	if prefs.PriceMax != nil && d.Price > *prefs.PriceMax {
		return true
	}
	return false
}

func ruleScore(d *feature.DishFeatures, user *feature.UserFeatures) float64 {
	score := 0.0
	if prefs := user.Preferences; prefs != nil {
		for _, tag := range d.Tags {
			if _, ok := prefs.Tags[tag]; ok {
				score += ruleTagWeight
			}
		}
		if _, ok := prefs.Canteens[d.CanteenID]; ok {
			score += ruleCanteenWeight
		}
	}
	for _, tag := range d.Tags {
		score += ruleFavoriteWeight * user.Favorites.TagWeights[tag]
	}
	return score
}
