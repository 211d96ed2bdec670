package recommend

import (
	"context"
	"sync"

	"github.com/dishcovery/dishcovery/internal/experiment"
	"github.com/dishcovery/dishcovery/internal/feature"
	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"
)

// MemoryStore is an in-memory Store and ExperimentSource, loaded from
// fixtures. Used by the CLI and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	dishes      map[string]feature.RawDish
	dishOrder   []string
	preferences map[string]*feature.RawPreferences
	favorites   map[string][]string
	browse      map[string][]feature.BrowseEvent
	experiments []experiment.Config
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dishes:      make(map[string]feature.RawDish),
		preferences: make(map[string]*feature.RawPreferences),
		favorites:   make(map[string][]string),
		browse:      make(map[string][]feature.BrowseEvent),
	}
}

// PutDish inserts or replaces a dish row.
func (s *MemoryStore) PutDish(dish feature.RawDish) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.dishes[dish.ID]; !exists {
		s.dishOrder = append(s.dishOrder, dish.ID)
	}
	s.dishes[dish.ID] = dish
}

// PutUser stores a user's preference row, favorite ids and browse
// events.
func (s *MemoryStore) PutUser(userID string, prefs *feature.RawPreferences, favoriteIDs []string, browse []feature.BrowseEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[userID] = prefs
	s.favorites[userID] = favoriteIDs
	s.browse[userID] = browse
}

// PutExperiments replaces the experiment snapshot.
func (s *MemoryStore) PutExperiments(experiments []experiment.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments = experiments
}

func (s *MemoryStore) GetDish(ctx context.Context, dishID string) (feature.RawDish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dish, ok := s.dishes[dishID]
	if !ok {
		return feature.RawDish{}, apperrors.NotFoundError("dish " + dishID)
	}
	return dish, nil
}

func (s *MemoryStore) ListDishes(ctx context.Context) ([]feature.RawDish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dishes := make([]feature.RawDish, 0, len(s.dishOrder))
	for _, id := range s.dishOrder {
		dishes = append(dishes, s.dishes[id])
	}
	return dishes, nil
}

func (s *MemoryStore) GetPreferences(ctx context.Context, userID string) (*feature.RawPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preferences[userID], nil
}

func (s *MemoryStore) GetFavorites(ctx context.Context, userID string) ([]feature.RawDish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.favorites[userID]
	dishes := make([]feature.RawDish, 0, len(ids))
	for _, id := range ids {
		if dish, ok := s.dishes[id]; ok {
			dishes = append(dishes, dish)
		}
	}
	return dishes, nil
}

func (s *MemoryStore) GetBrowseEvents(ctx context.Context, userID string) ([]feature.BrowseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.browse[userID], nil
}

func (s *MemoryStore) ListFavoriteIDs(ctx context.Context) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.favorites))
	for userID, ids := range s.favorites {
		out[userID] = append([]string(nil), ids...)
	}
	return out, nil
}

func (s *MemoryStore) ListExperiments(ctx context.Context) ([]experiment.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]experiment.Config(nil), s.experiments...), nil
}
