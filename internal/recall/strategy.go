// Package recall generates candidate dish ids for one user. Three
// independent strategies produce ranked lists which a quota blender
// merges into a single deduplicated candidate set.
package recall

import (
	"context"
	"sort"

	"github.com/dishcovery/dishcovery/internal/feature"
)

// Strategy names, used for logging and quota mapping.
const (
	StrategyVector        = "vector"
	StrategyRule          = "rule"
	StrategyCollaborative = "collaborative"
)

// Strategy produces a ranked, duplicate-free list of dish ids for one
// user. Allergen exclusion is applied inside every strategy before
// ranking, never left to scoring.
type Strategy interface {
	Name() string
	Recall(ctx context.Context, user *feature.UserFeatures, poolSize int) ([]string, error)
}

// DishSource supplies the dish pool snapshot strategies rank over.
type DishSource interface {
	ListDishes(ctx context.Context) ([]*feature.DishFeatures, error)
}

// FavoriteSource supplies the favorite sets of all users, keyed by
// user id, for collaborative recall.
type FavoriteSource interface {
	ListFavorites(ctx context.Context) (map[string][]string, error)
}

// Quota describes the share of the blended candidate set allocated to
// each strategy. Ratios need not sum to 1; the blender backfills any
// shortfall.
type Quota struct {
	Vector        float64
	Rule          float64
	Collaborative float64
}

// rankedDish is a strategy-internal scoring row.
type rankedDish struct {
	id          string
	score       float64
	reviewCount int
}

// sortRanked orders rows by score descending, then review count
// descending, then id ascending. Every strategy uses the same order so
// results are reproducible.
func sortRanked(rows []rankedDish) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		if rows[i].reviewCount != rows[j].reviewCount {
			return rows[i].reviewCount > rows[j].reviewCount
		}
		return rows[i].id < rows[j].id
	})
}

func topIDs(rows []rankedDish, limit int) []string {
	if limit > len(rows) {
		limit = len(rows)
	}
	ids := make([]string, 0, limit)
	for _, r := range rows[:limit] {
		ids = append(ids, r.id)
	}
	return ids
}
