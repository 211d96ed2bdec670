package recommend

import (
	"context"

	"github.com/dishcovery/dishcovery/internal/bus"
	"github.com/dishcovery/dishcovery/internal/config"
	"github.com/dishcovery/dishcovery/internal/embedding"
	"github.com/dishcovery/dishcovery/internal/experiment"
	"github.com/dishcovery/dishcovery/internal/feature"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
	"github.com/dishcovery/dishcovery/internal/recall"
	"github.com/dishcovery/dishcovery/internal/scoring"
	"github.com/dishcovery/dishcovery/internal/vectorindex"
)

// Service owns the wired recommendation pipeline and its closable
// resources.
type Service struct {
	Orchestrator *Orchestrator
	Gateway      *embedding.Gateway
	Pool         *DishPool

	store      Store
	extractor  *feature.Extractor
	strategies []recall.Strategy
	index      vectorindex.Index
	events     bus.Bus
	log        *logger.Logger
}

// NewService builds the pipeline from configuration: embedding gateway
// with its configured cache, vector index (qdrant or in-memory),
// recall strategies, assigner, scoring engine and event bus.
func NewService(ctx context.Context, cfg *config.Config, store Store, experiments ExperimentSource, log *logger.Logger) (*Service, error) {
	embCache, err := embedding.NewCacheFromConfig(cfg.Cache, log)
	if err != nil {
		return nil, err
	}
	gateway := embedding.NewGateway(embedding.ConfigFromApp(cfg.Embedding), embCache, log)

	var index vectorindex.Index
	if cfg.Qdrant.Enabled {
		index, err = vectorindex.NewQdrantIndex(ctx, cfg.Qdrant, gateway.Version(), gateway.Dim(), log)
		if err != nil {
			return nil, err
		}
	} else {
		index = vectorindex.NewMemoryIndex(gateway.Version())
	}

	events, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		index.Close()
		return nil, err
	}

	extractor := feature.NewExtractor(feature.ExtractorConfig{
		BrowseHalfLife: cfg.Feature.BrowseHalfLife,
		BrowseHorizon:  cfg.Feature.BrowseHorizon,
		RecentDishCap:  cfg.Feature.RecentDishCap,
	})
	dishCache := feature.NewCache(extractor, store.GetDish, cfg.Feature.DishCacheTTL, cfg.Feature.DishCacheSize)
	pool := NewDishPool(store, extractor, log)

	vector := recall.NewVectorStrategy(gateway, index, pool, log)
	rule := recall.NewRuleStrategy(pool)
	collab := recall.NewCollaborativeStrategy(pool, pool)
	runner := recall.NewRunner(vector, rule, collab, cfg.Recall.StrategyTimeout, log)

	orchestrator := NewOrchestrator(
		cfg.Recommend,
		cfg.Recall,
		store,
		experiments,
		extractor,
		dishCache,
		experiment.NewAssigner(log),
		runner,
		scoring.NewEngine(cfg.Scoring, log),
		events,
		log,
	)

	return &Service{
		Orchestrator: orchestrator,
		Gateway:      gateway,
		Pool:         pool,
		store:        store,
		extractor:    extractor,
		strategies:   []recall.Strategy{vector, rule, collab},
		index:        index,
		events:       events,
		log:          log,
	}, nil
}

// Strategies returns the wired recall strategies, in vector, rule,
// collaborative order. Used by the offline evaluator.
func (s *Service) Strategies() []recall.Strategy {
	return s.strategies
}

// UserFeatures loads a user's signals from the store and extracts a
// feature snapshot.
func (s *Service) UserFeatures(ctx context.Context, userID string) (*feature.UserFeatures, error) {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	favorites, err := s.store.GetFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	browse, err := s.store.GetBrowseEvents(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.extractor.ExtractUserFeatures(userID, prefs, favorites, browse)
}

// ReindexDishes embeds the full dish pool and upserts it into the
// vector index. Fallback-tagged embeddings are skipped; they are not
// comparable against the indexed version.
func (s *Service) ReindexDishes(ctx context.Context) (int, error) {
	dishes, err := s.Pool.ListDishes(ctx)
	if err != nil {
		return 0, err
	}
	if len(dishes) == 0 {
		return 0, nil
	}

	embeddings, err := s.Gateway.EmbedDishes(ctx, dishes)
	if err != nil {
		return 0, err
	}

	entries := make([]vectorindex.Entry, 0, len(dishes))
	for i, d := range dishes {
		if embeddings[i].IsFallback() {
			s.log.Warn("skipping fallback embedding during reindex", "dish_id", d.ID)
			continue
		}
		entries = append(entries, vectorindex.Entry{
			DishID:      d.ID,
			Embedding:   embeddings[i],
			ReviewCount: d.ReviewCount,
		})
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Close releases the index and event bus.
func (s *Service) Close() error {
	err := s.index.Close()
	if busErr := s.events.Close(); err == nil {
		err = busErr
	}
	return err
}
