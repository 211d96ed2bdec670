// Package recommend orchestrates one recommendation request end to
// end: user features, experiment assignment, parallel recall, quota
// blending and greedy diversity-aware ranking.
package recommend

import (
	"context"

	"github.com/dishcovery/dishcovery/internal/experiment"
	"github.com/dishcovery/dishcovery/internal/feature"
)

// Store is the persistence collaborator. Implementations load the raw
// rows the feature extractor consumes; errors surface as upstream
// unavailability and degrade per strategy rather than failing the
// whole request.
type Store interface {
	// GetDish loads one dish row with its review aggregates.
	GetDish(ctx context.Context, dishID string) (feature.RawDish, error)

	// ListDishes loads the full dish pool.
	ListDishes(ctx context.Context) ([]feature.RawDish, error)

	// GetPreferences loads the user's stated preferences, nil when the
	// user never set any.
	GetPreferences(ctx context.Context, userID string) (*feature.RawPreferences, error)

	// GetFavorites loads the user's favorited dishes.
	GetFavorites(ctx context.Context, userID string) ([]feature.RawDish, error)

	// GetBrowseEvents loads the user's browse history, joined with
	// dishes.
	GetBrowseEvents(ctx context.Context, userID string) ([]feature.BrowseEvent, error)

	// ListFavoriteIDs returns every user's favorited dish ids, keyed by
	// user id, for collaborative recall.
	ListFavoriteIDs(ctx context.Context) (map[string][]string, error)
}

// ExperimentSource is the experiment-config collaborator. Configs are
// read-only snapshots; one fetch covers the whole request so a config
// change mid-request cannot change its outcome.
type ExperimentSource interface {
	ListExperiments(ctx context.Context) ([]experiment.Config, error)
}
