package recommend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dishcovery/dishcovery/internal/bus"
	"github.com/dishcovery/dishcovery/internal/config"
	"github.com/dishcovery/dishcovery/internal/experiment"
	"github.com/dishcovery/dishcovery/internal/feature"
	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
	"github.com/dishcovery/dishcovery/internal/recall"
	"github.com/dishcovery/dishcovery/internal/scoring"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func rawDish(id, canteen string, tags, allergens []string, price, rating float64, reviews int) feature.RawDish {
	return feature.RawDish{
		ID:          id,
		Name:        id,
		CanteenID:   canteen,
		Tags:        tags,
		Allergens:   allergens,
		Price:       price,
		Spicy:       2,
		Sweet:       1,
		Salty:       2,
		Oily:        1,
		AvgRating:   rating,
		ReviewCount: reviews,
		UpdatedAt:   time.Now(),
	}
}

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	store.PutDish(rawDish("peanut-satay", "north", []string{"peanut", "grill"}, []string{"peanut"}, 14, 4.8, 300))
	store.PutDish(rawDish("spicy-noodles", "north", []string{"spicy", "noodles"}, nil, 12, 4.4, 180))
	store.PutDish(rawDish("tofu-bowl", "north", []string{"vegan", "spicy"}, nil, 10, 4.1, 90))
	store.PutDish(rawDish("sweet-cake", "south", []string{"dessert"}, nil, 6, 4.6, 250))
	store.PutDish(rawDish("plain-rice", "south", []string{"staple"}, nil, 3, 3.2, 400))
	store.PutDish(rawDish("new-mystery", "east", []string{"special"}, nil, 15, 5.0, 1))

	store.PutUser("spice-fan", &feature.RawPreferences{
		Tags:      []string{"spicy", "noodles"},
		Allergens: []string{"peanut"},
	}, []string{"spicy-noodles"}, nil)
	store.PutUser("blank-user", nil, nil, nil)
	store.PutUser("twin", nil, []string{"spicy-noodles", "tofu-bowl"}, nil)
	return store
}

func newTestService(t *testing.T, store *MemoryStore) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), testConfig(t), store, store, logger.Default())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	if _, err := svc.ReindexDishes(context.Background()); err != nil {
		t.Fatalf("ReindexDishes() error = %v", err)
	}
	return svc
}

func TestRecommendAllergenHardFilter(t *testing.T) {
	svc := newTestService(t, seedStore(t))

	resp, err := svc.Orchestrator.Recommend(context.Background(), "spice-fan", Options{PageSize: 10})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Items) == 0 {
		t.Fatal("Recommend() returned no items")
	}
	for _, item := range resp.Items {
		if item.DishID == "peanut-satay" {
			t.Error("dish containing the user's allergen reached the results")
		}
	}
}

func TestRecommendEmptyUserQualityOnly(t *testing.T) {
	svc := newTestService(t, seedStore(t))

	resp, err := svc.Orchestrator.Recommend(context.Background(), "blank-user", Options{PageSize: 3})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("Recommend() returned %d items, want 3", len(resp.Items))
	}

	for _, item := range resp.Items {
		b := item.Breakdown
		if b.Preference != 0 || b.Favorite != 0 || b.Browse != 0 || b.Search != 0 {
			t.Errorf("signal-free user got personalization terms: %s %+v", item.DishID, b)
		}
	}
	// Shrinkage keeps the single 5-star review behind the well-reviewed
	// dishes.
	if resp.Items[0].DishID == "new-mystery" {
		t.Error("single-review dish outranked well-reviewed dishes")
	}
}

func TestRecommendEmptyUserNearDuplicateOrder(t *testing.T) {
	// Two near-duplicates (same canteen, identical tags) and one
	// unrelated low-quality dish. Without personalization signals the
	// page must follow quality order; diversity must not demote the
	// runner-up duplicate below the unrelated dish.
	store := NewMemoryStore()
	store.PutDish(rawDish("laksa-classic", "north", []string{"spicy", "noodles"}, nil, 12, 4.8, 300))
	store.PutDish(rawDish("laksa-special", "north", []string{"spicy", "noodles"}, nil, 13, 4.7, 200))
	store.PutDish(rawDish("fruit-salad", "south", []string{"fresh"}, nil, 6, 3.9, 150))
	store.PutUser("blank-user", nil, nil, nil)
	svc := newTestService(t, store)

	resp, err := svc.Orchestrator.Recommend(context.Background(), "blank-user", Options{PageSize: 3})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("Recommend() returned %d items, want 3", len(resp.Items))
	}

	want := []string{"laksa-classic", "laksa-special", "fruit-salad"}
	for i, item := range resp.Items {
		if item.DishID != want[i] {
			t.Fatalf("position %d = %s, want %s (quality order)", i, item.DishID, want[i])
		}
	}
	for i := 1; i < len(resp.Items); i++ {
		if resp.Items[i].Breakdown.Quality > resp.Items[i-1].Breakdown.Quality {
			t.Errorf("quality not descending at position %d", i)
		}
	}
}

func TestRecommendPageSize(t *testing.T) {
	svc := newTestService(t, seedStore(t))

	resp, err := svc.Orchestrator.Recommend(context.Background(), "blank-user", Options{PageSize: 2})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Items) != 2 {
		t.Errorf("page of %d items, want 2", len(resp.Items))
	}

	seen := make(map[string]struct{})
	for _, item := range resp.Items {
		if _, dup := seen[item.DishID]; dup {
			t.Errorf("duplicate dish %s in results", item.DishID)
		}
		seen[item.DishID] = struct{}{}
	}
}

func TestRecommendSearchKeyword(t *testing.T) {
	svc := newTestService(t, seedStore(t))

	resp, err := svc.Orchestrator.Recommend(context.Background(), "blank-user", Options{
		PageSize:      3,
		SearchKeyword: "noodles",
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Items) == 0 {
		t.Fatal("Recommend() returned no items")
	}
	if resp.Items[0].DishID != "spicy-noodles" {
		t.Errorf("keyword search top item = %s, want spicy-noodles", resp.Items[0].DishID)
	}
}

func TestRecommendExperimentFallthrough(t *testing.T) {
	store := seedStore(t)
	store.PutExperiments([]experiment.Config{{
		ID:           "exp-zero",
		Name:         "exp-zero",
		TrafficRatio: 0,
		Groups:       []experiment.GroupItem{{ID: "all", Ratio: 1}},
		StartTime:    time.Now().Add(-time.Hour),
		Status:       experiment.StatusRunning,
	}})
	svc := newTestService(t, store)

	resp, err := svc.Orchestrator.Recommend(context.Background(), "blank-user", Options{PageSize: 3})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if resp.Assignment != nil {
		t.Errorf("zero-traffic experiment claimed the user: %+v", resp.Assignment)
	}
}

func TestRecommendExperimentAssignment(t *testing.T) {
	quality := 5.0
	store := seedStore(t)
	store.PutExperiments([]experiment.Config{{
		ID:           "exp-quality",
		Name:         "exp-quality",
		TrafficRatio: 1,
		Groups: []experiment.GroupItem{{
			ID:      "boost",
			Ratio:   1,
			Weights: &scoring.WeightOverride{DishQuality: &quality},
		}},
		StartTime: time.Now().Add(-time.Hour),
		Status:    experiment.StatusRunning,
	}})
	svc := newTestService(t, store)

	first, err := svc.Orchestrator.Recommend(context.Background(), "blank-user", Options{PageSize: 3})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if first.Assignment == nil || first.Assignment.GroupID != "boost" {
		t.Fatalf("assignment = %+v, want group boost", first.Assignment)
	}
	if first.Assignment.Weights.DishQuality != 5.0 {
		t.Errorf("resolved quality weight = %v, want 5.0", first.Assignment.Weights.DishQuality)
	}

	second, err := svc.Orchestrator.Recommend(context.Background(), "blank-user", Options{PageSize: 3})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if second.Assignment.GroupID != first.Assignment.GroupID {
		t.Error("assignment changed between identical requests")
	}
}

func TestRecommendPublishesServedEvent(t *testing.T) {
	store := seedStore(t)
	svc := newTestService(t, store)

	var mu sync.Mutex
	var events []bus.Event
	memBus := svc.events.(*bus.MemoryBus)
	_ = memBus.Subscribe(context.Background(), bus.TopicRecommendServed, func(ctx context.Context, e bus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	})

	if _, err := svc.Orchestrator.Recommend(context.Background(), "blank-user", Options{PageSize: 3}); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if !memBus.DrainTimeout(time.Second) {
		t.Fatal("bus did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("got %d served events, want 1", len(events))
	}
	payload, ok := events[0].Payload.(ServedPayload)
	if !ok {
		t.Fatalf("payload type %T", events[0].Payload)
	}
	if payload.UserID != "blank-user" || len(payload.DishIDs) != 3 {
		t.Errorf("served payload = %+v", payload)
	}
}

type failingStrategy struct{ name string }

func (f *failingStrategy) Name() string { return f.name }

func (f *failingStrategy) Recall(ctx context.Context, user *feature.UserFeatures, poolSize int) ([]string, error) {
	return nil, apperrors.UpstreamUnavailableError("store", context.DeadlineExceeded)
}

func TestRecommendAllStrategiesDown(t *testing.T) {
	cfg := testConfig(t)
	store := seedStore(t)
	log := logger.Default()

	extractor := feature.NewExtractor(feature.DefaultExtractorConfig())
	runner := recall.NewRunner(
		&failingStrategy{recall.StrategyVector},
		&failingStrategy{recall.StrategyRule},
		&failingStrategy{recall.StrategyCollaborative},
		time.Second, log,
	)
	orchestrator := NewOrchestrator(
		cfg.Recommend, cfg.Recall, store, store,
		extractor,
		feature.NewCache(extractor, store.GetDish, time.Minute, 100),
		experiment.NewAssigner(log),
		runner,
		scoring.NewEngine(cfg.Scoring, log),
		bus.NoopBus{},
		log,
	)

	_, err := orchestrator.Recommend(context.Background(), "blank-user", Options{PageSize: 3})
	if !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Errorf("Recommend() error = %v, want SERVICE_UNAVAILABLE", err)
	}
}

func TestRecommendEmptyUserID(t *testing.T) {
	svc := newTestService(t, seedStore(t))
	if _, err := svc.Orchestrator.Recommend(context.Background(), "", Options{}); err == nil {
		t.Error("Recommend() with empty user id succeeded")
	}
}
