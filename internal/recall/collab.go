package recall

import (
	"context"

	"github.com/dishcovery/dishcovery/internal/feature"
)

// CollaborativeStrategy ranks dishes favorited by users whose favorite
// sets overlap with this user's. Each neighbour contributes their
// overlap size as co-occurrence strength to every dish they favorited
// that the user has not.
type CollaborativeStrategy struct {
	dishes    DishSource
	favorites FavoriteSource
}

func NewCollaborativeStrategy(dishes DishSource, favorites FavoriteSource) *CollaborativeStrategy {
	return &CollaborativeStrategy{dishes: dishes, favorites: favorites}
}

func (s *CollaborativeStrategy) Name() string { return StrategyCollaborative }

func (s *CollaborativeStrategy) Recall(ctx context.Context, user *feature.UserFeatures, poolSize int) ([]string, error) {
	if poolSize <= 0 || user.Favorites.Count == 0 {
		return nil, nil
	}

	allFavorites, err := s.favorites.ListFavorites(ctx)
	if err != nil {
		return nil, err
	}

	strength := make(map[string]float64)
	for otherID, favs := range allFavorites {
		if otherID == user.UserID {
			continue
		}
		overlap := 0
		for _, id := range favs {
			if _, ok := user.Favorites.DishIDs[id]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		for _, id := range favs {
			if _, ok := user.Favorites.DishIDs[id]; ok {
				continue
			}
			strength[id] += float64(overlap)
		}
	}
	if len(strength) == 0 {
		return nil, nil
	}

	byID, err := dishMap(ctx, s.dishes)
	if err != nil {
		return nil, err
	}

	rows := make([]rankedDish, 0, len(strength))
	for id, sc := range strength {
		d, ok := byID[id]
		if !ok || d.ContainsAnyAllergen(user.Allergens) {
			continue
		}
		rows = append(rows, rankedDish{id: id, score: sc, reviewCount: d.ReviewCount})
	}

	sortRanked(rows)
	return topIDs(rows, poolSize), nil
}
