package recommend

import (
	"context"

	"github.com/dishcovery/dishcovery/internal/feature"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
)

// DishPool adapts the persistence store into the read-only feature
// snapshot the recall strategies rank over. Rows that fail extraction
// are dropped with a logged skip instead of failing the pool.
type DishPool struct {
	store     Store
	extractor *feature.Extractor
	log       *logger.Logger
}

func NewDishPool(store Store, extractor *feature.Extractor, log *logger.Logger) *DishPool {
	return &DishPool{store: store, extractor: extractor, log: log}
}

func (p *DishPool) ListDishes(ctx context.Context) ([]*feature.DishFeatures, error) {
	rows, err := p.store.ListDishes(ctx)
	if err != nil {
		return nil, err
	}
	dishes := make([]*feature.DishFeatures, 0, len(rows))
	for _, row := range rows {
		d, err := p.extractor.ExtractDishFeatures(row)
		if err != nil {
			p.log.Warn("dropping dish with corrupt features", "dish_id", row.ID, "error", err)
			continue
		}
		dishes = append(dishes, d)
	}
	return dishes, nil
}

func (p *DishPool) ListFavorites(ctx context.Context) (map[string][]string, error) {
	return p.store.ListFavoriteIDs(ctx)
}
