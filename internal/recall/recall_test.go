package recall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dishcovery/dishcovery/internal/embedding"
	"github.com/dishcovery/dishcovery/internal/feature"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
	"github.com/dishcovery/dishcovery/internal/vectorindex"
)

type memSource struct {
	dishes    []*feature.DishFeatures
	favorites map[string][]string
	err       error
}

func (m *memSource) ListDishes(ctx context.Context) ([]*feature.DishFeatures, error) {
	return m.dishes, m.err
}

func (m *memSource) ListFavorites(ctx context.Context) (map[string][]string, error) {
	return m.favorites, m.err
}

func mustDish(t *testing.T, id, canteen string, tags, allergens []string, price float64, rating float64, reviews int) *feature.DishFeatures {
	t.Helper()
	d, err := feature.NewExtractor(feature.DefaultExtractorConfig()).ExtractDishFeatures(feature.RawDish{
		ID:          id,
		Name:        id,
		CanteenID:   canteen,
		Tags:        tags,
		Allergens:   allergens,
		Price:       price,
		Spicy:       1,
		Sweet:       1,
		Salty:       1,
		Oily:        1,
		AvgRating:   rating,
		ReviewCount: reviews,
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("ExtractDishFeatures(%s) error = %v", id, err)
	}
	return d
}

func testUser(userID string) *feature.UserFeatures {
	return &feature.UserFeatures{
		UserID:    userID,
		Allergens: make(map[string]struct{}),
		Favorites: feature.FavoriteFeatureSummary{
			TagWeights:  make(map[string]float64),
			Canteens:    make(map[string]struct{}),
			Ingredients: make(map[string]struct{}),
			DishIDs:     make(map[string]struct{}),
		},
		Browse: feature.BrowseFeatureSummary{
			TagWeights:     make(map[string]float64),
			CanteenWeights: make(map[string]float64),
			Ingredients:    make(map[string]struct{}),
		},
	}
}

func userWithAllergens(userID string, allergens ...string) *feature.UserFeatures {
	u := testUser(userID)
	for _, a := range allergens {
		u.Allergens[a] = struct{}{}
	}
	return u
}

func TestRuleRecallFiltersAndRanks(t *testing.T) {
	src := &memSource{dishes: []*feature.DishFeatures{
		mustDish(t, "peanut-noodles", "north", []string{"noodles", "spicy"}, []string{"peanut"}, 12, 4.5, 90),
		mustDish(t, "tofu-bowl", "north", []string{"vegan", "spicy"}, nil, 10, 4.0, 40),
		mustDish(t, "plain-rice", "south", []string{"staple"}, nil, 3, 3.0, 200),
		mustDish(t, "gold-steak", "south", []string{"meat"}, nil, 48, 4.8, 60),
	}}

	priceMax := 20.0
	user := userWithAllergens("u1", "peanut")
	user.Preferences = &feature.UserPreferenceFeatures{
		Tags:     map[string]struct{}{"spicy": {}, "vegan": {}},
		Canteens: map[string]struct{}{"north": {}},
		PriceMax: &priceMax,
	}

	ids, err := NewRuleStrategy(src).Recall(context.Background(), user, 10)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}

	// peanut-noodles is allergen-filtered, gold-steak is over budget.
	if len(ids) != 2 {
		t.Fatalf("Recall() = %v, want 2 survivors", ids)
	}
	if ids[0] != "tofu-bowl" {
		t.Errorf("top dish = %s, want tofu-bowl (two tag matches + canteen)", ids[0])
	}
	for _, id := range ids {
		if id == "peanut-noodles" || id == "gold-steak" {
			t.Errorf("hard-filtered dish %s appeared in results", id)
		}
	}
}

func TestRuleRecallNoPreferences(t *testing.T) {
	src := &memSource{dishes: []*feature.DishFeatures{
		mustDish(t, "b-dish", "north", []string{"noodles"}, nil, 10, 4.0, 50),
		mustDish(t, "a-dish", "north", []string{"rice"}, nil, 10, 4.0, 50),
	}}

	ids, err := NewRuleStrategy(src).Recall(context.Background(), testUser("u1"), 10)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	// All scores zero and review counts equal, so order falls back to id.
	if len(ids) != 2 || ids[0] != "a-dish" {
		t.Errorf("Recall() = %v, want [a-dish b-dish]", ids)
	}
}

func TestCollaborativeRecall(t *testing.T) {
	src := &memSource{
		dishes: []*feature.DishFeatures{
			mustDish(t, "d1", "north", nil, nil, 10, 4.0, 50),
			mustDish(t, "d2", "north", nil, nil, 10, 4.0, 50),
			mustDish(t, "d3", "north", nil, nil, 10, 4.0, 50),
			mustDish(t, "d4", "south", nil, []string{"shrimp"}, 10, 4.0, 50),
		},
		favorites: map[string][]string{
			"me":       {"d1"},
			"twin":     {"d1", "d2", "d4"},
			"stranger": {"d3"},
		},
	}

	user := userWithAllergens("me", "shrimp")
	user.Favorites.Count = 1
	user.Favorites.DishIDs["d1"] = struct{}{}

	ids, err := NewCollaborativeStrategy(src, src).Recall(context.Background(), user, 10)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}

	// twin shares d1, so their other favorites surface; d4 is allergen
	// filtered, d3 has no co-occurrence, d1 is already a favorite.
	if len(ids) != 1 || ids[0] != "d2" {
		t.Errorf("Recall() = %v, want [d2]", ids)
	}
}

func TestCollaborativeRecallNoFavorites(t *testing.T) {
	src := &memSource{favorites: map[string][]string{"other": {"d1"}}}

	ids, err := NewCollaborativeStrategy(src, src).Recall(context.Background(), testUser("me"), 10)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Recall() without favorites = %v, want empty", ids)
	}
}

func newVectorFixture(t *testing.T, dishes []*feature.DishFeatures) (*VectorStrategy, *embedding.Gateway) {
	t.Helper()
	log := logger.Default()
	gateway := embedding.NewGateway(embedding.DefaultServiceConfig(), nil, log)

	idx := vectorindex.NewMemoryIndex(gateway.Version())
	embs, err := gateway.EmbedDishes(context.Background(), dishes)
	if err != nil {
		t.Fatalf("EmbedDishes() error = %v", err)
	}
	entries := make([]vectorindex.Entry, len(dishes))
	for i, d := range dishes {
		entries[i] = vectorindex.Entry{DishID: d.ID, Embedding: embs[i], ReviewCount: d.ReviewCount}
	}
	if err := idx.Upsert(context.Background(), entries); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	src := &memSource{dishes: dishes}
	return NewVectorStrategy(gateway, idx, src, log), gateway
}

func TestVectorRecallRanksBySimilarity(t *testing.T) {
	dishes := []*feature.DishFeatures{
		mustDish(t, "spicy-noodles", "north", []string{"spicy", "noodles"}, nil, 12, 4.2, 80),
		mustDish(t, "sweet-cake", "south", []string{"dessert", "sweet"}, nil, 6, 4.6, 120),
		mustDish(t, "spicy-hotpot", "north", []string{"spicy", "hotpot"}, []string{"peanut"}, 25, 4.4, 150),
	}
	strategy, _ := newVectorFixture(t, dishes)

	user := userWithAllergens("u1", "peanut")
	user.Preferences = &feature.UserPreferenceFeatures{
		Tags: map[string]struct{}{"spicy": {}, "noodles": {}},
	}

	ids, err := strategy.Recall(context.Background(), user, 2)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(ids) == 0 {
		t.Fatal("Recall() returned no candidates")
	}
	if ids[0] != "spicy-noodles" {
		t.Errorf("top dish = %s, want spicy-noodles", ids[0])
	}
	for _, id := range ids {
		if id == "spicy-hotpot" {
			t.Error("allergen-filtered dish appeared in vector results")
		}
	}
}

func TestVectorRecallSkipsFallbackEmbedding(t *testing.T) {
	dishes := []*feature.DishFeatures{
		mustDish(t, "d1", "north", []string{"spicy"}, nil, 10, 4.0, 50),
	}

	// The external service is unreachable, so the user embedding comes
	// back fallback-tagged and the strategy must degrade to empty
	// instead of comparing across versions.
	strategy := NewVectorStrategy(
		embedding.NewGateway(embedding.ServiceConfig{
			ExternalEnabled: true,
			ExternalURL:     "http://127.0.0.1:1", // unreachable, forces fallback
			ExternalVersion: "ext-v1",
			ExternalDim:     8,
			InternalDim:     8,
			BatchSize:       4,
			Timeout:         100 * time.Millisecond,
			MaxRetries:      0,
			RequestsPerSec:  100,
		}, nil, logger.Default()),
		vectorindex.NewMemoryIndex("ext-v1"),
		&memSource{dishes: dishes},
		logger.Default(),
	)

	ids, err := strategy.Recall(context.Background(), testUser("u1"), 5)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Recall() with fallback embedding = %v, want empty", ids)
	}
}

type stubStrategy struct {
	name string
	ids  []string
	err  error
	wait time.Duration
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Recall(ctx context.Context, user *feature.UserFeatures, poolSize int) ([]string, error) {
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.ids, s.err
}

func TestRunnerJoinsAllStrategies(t *testing.T) {
	r := NewRunner(
		&stubStrategy{name: StrategyVector, ids: []string{"v1"}},
		&stubStrategy{name: StrategyRule, ids: []string{"r1"}},
		&stubStrategy{name: StrategyCollaborative, ids: []string{"c1"}},
		time.Second, logger.Default(),
	)

	result := r.Run(context.Background(), testUser("u1"), 10)
	if result.Failures != 0 {
		t.Errorf("Failures = %d, want 0", result.Failures)
	}
	if len(result.Vector) != 1 || len(result.Rule) != 1 || len(result.Collaborative) != 1 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestRunnerDegradesFailedStrategy(t *testing.T) {
	r := NewRunner(
		&stubStrategy{name: StrategyVector, err: errors.New("index down")},
		&stubStrategy{name: StrategyRule, ids: []string{"r1"}},
		&stubStrategy{name: StrategyCollaborative, wait: time.Second},
		20*time.Millisecond, logger.Default(),
	)

	result := r.Run(context.Background(), testUser("u1"), 10)
	if result.Failures != 2 {
		t.Errorf("Failures = %d, want 2 (error + timeout)", result.Failures)
	}
	if len(result.Vector) != 0 || len(result.Collaborative) != 0 {
		t.Errorf("failed strategies should yield empty lists, got %+v", result)
	}
	if len(result.Rule) != 1 {
		t.Errorf("healthy strategy lost its result: %+v", result)
	}
	if result.Empty() {
		t.Error("Empty() = true with one healthy strategy")
	}
}

func TestRunnerAllFailed(t *testing.T) {
	r := NewRunner(
		&stubStrategy{name: StrategyVector, err: errors.New("down")},
		&stubStrategy{name: StrategyRule, err: errors.New("down")},
		&stubStrategy{name: StrategyCollaborative, err: errors.New("down")},
		time.Second, logger.Default(),
	)

	result := r.Run(context.Background(), testUser("u1"), 10)
	if result.Failures != 3 {
		t.Errorf("Failures = %d, want 3", result.Failures)
	}
	if !result.Empty() {
		t.Errorf("Empty() = false, want true: %+v", result)
	}
}
