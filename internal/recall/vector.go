package recall

import (
	"context"

	"github.com/dishcovery/dishcovery/internal/embedding"
	"github.com/dishcovery/dishcovery/internal/feature"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
	"github.com/dishcovery/dishcovery/internal/vectorindex"
)

// VectorStrategy embeds the user and ranks dishes by vector similarity
// against the dish index.
type VectorStrategy struct {
	gateway *embedding.Gateway
	index   vectorindex.Index
	dishes  DishSource
	log     *logger.Logger
}

func NewVectorStrategy(gateway *embedding.Gateway, index vectorindex.Index, dishes DishSource, log *logger.Logger) *VectorStrategy {
	return &VectorStrategy{gateway: gateway, index: index, dishes: dishes, log: log}
}

func (s *VectorStrategy) Name() string { return StrategyVector }

// Recall embeds the user and returns the nearest dishes that survive
// the allergen filter. A fallback-version user embedding is not
// comparable against the indexed vectors, so this strategy degrades to
// an empty list and leaves candidate generation to the other two.
func (s *VectorStrategy) Recall(ctx context.Context, user *feature.UserFeatures, poolSize int) ([]string, error) {
	if poolSize <= 0 {
		return nil, nil
	}

	emb, err := s.gateway.EmbedUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if emb.IsFallback() {
		s.log.Warn("user embedding degraded, skipping vector recall", "user_id", user.UserID)
		return nil, nil
	}

	// Over-fetch so allergen filtering does not shrink the pool below
	// poolSize.
	hits, err := s.index.Search(ctx, emb, poolSize*2)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	byID, err := dishMap(ctx, s.dishes)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, poolSize)
	for _, h := range hits {
		d, ok := byID[h.DishID]
		if !ok || d.ContainsAnyAllergen(user.Allergens) {
			continue
		}
		ids = append(ids, h.DishID)
		if len(ids) == poolSize {
			break
		}
	}
	return ids, nil
}

func dishMap(ctx context.Context, src DishSource) (map[string]*feature.DishFeatures, error) {
	dishes, err := src.ListDishes(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*feature.DishFeatures, len(dishes))
	for _, d := range dishes {
		byID[d.ID] = d
	}
	return byID, nil
}
