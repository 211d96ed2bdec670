// Package dataset loads YAML fixtures of dishes, users, experiments
// and judgment sets into the in-memory store, so the CLI and the
// offline evaluator run without live collaborators.
package dataset

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"

	"github.com/dishcovery/dishcovery/internal/evaluation"
	"github.com/dishcovery/dishcovery/internal/experiment"
	"github.com/dishcovery/dishcovery/internal/feature"
	"github.com/dishcovery/dishcovery/internal/recommend"
)

// BrowseEntry references a dish by id so fixtures do not duplicate
// dish rows. It is resolved against the dataset's dishes on Populate.
type BrowseEntry struct {
	DishID   string    `yaml:"dish_id"`
	ViewedAt time.Time `yaml:"viewed_at"`
}

// User is one fixture user with all three signal sources.
type User struct {
	ID          string                  `yaml:"id"`
	Preferences *feature.RawPreferences `yaml:"preferences"`
	FavoriteIDs []string                `yaml:"favorite_ids"`
	Browse      []BrowseEntry           `yaml:"browse"`
}

// Dataset is the root fixture document.
type Dataset struct {
	Dishes      []feature.RawDish     `yaml:"dishes"`
	Users       []User                `yaml:"users"`
	Experiments []experiment.Config   `yaml:"experiments"`
	Judgments   []evaluation.Judgment `yaml:"judgments"`
}

// Load reads, parses and validates a fixture file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parsing dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks referential integrity: every favorite, browse entry
// and judgment must point at a dish the dataset defines.
func (ds *Dataset) Validate() error {
	dishes := make(map[string]struct{}, len(ds.Dishes))
	for _, dish := range ds.Dishes {
		if dish.ID == "" {
			return apperrors.ValidationError("dish id is required")
		}
		if _, dup := dishes[dish.ID]; dup {
			return apperrors.ValidationError("duplicate dish id " + dish.ID)
		}
		dishes[dish.ID] = struct{}{}
	}

	for _, user := range ds.Users {
		if user.ID == "" {
			return apperrors.ValidationError("user id is required")
		}
		for _, id := range user.FavoriteIDs {
			if _, ok := dishes[id]; !ok {
				return apperrors.ValidationError(fmt.Sprintf("user %s favorite references unknown dish %s", user.ID, id))
			}
		}
		for _, entry := range user.Browse {
			if _, ok := dishes[entry.DishID]; !ok {
				return apperrors.ValidationError(fmt.Sprintf("user %s browse references unknown dish %s", user.ID, entry.DishID))
			}
		}
	}

	for _, exp := range ds.Experiments {
		if err := exp.Validate(); err != nil {
			return err
		}
	}

	for _, j := range ds.Judgments {
		if _, ok := dishes[j.DishID]; !ok {
			return apperrors.ValidationError(fmt.Sprintf("judgment for user %s references unknown dish %s", j.UserID, j.DishID))
		}
	}
	return nil
}

// Populate loads the dataset into a memory store. Browse entries are
// joined with their dish rows here.
func (ds *Dataset) Populate(store *recommend.MemoryStore) {
	dishes := make(map[string]feature.RawDish, len(ds.Dishes))
	for _, dish := range ds.Dishes {
		store.PutDish(dish)
		dishes[dish.ID] = dish
	}
	for _, user := range ds.Users {
		browse := make([]feature.BrowseEvent, 0, len(user.Browse))
		for _, entry := range user.Browse {
			browse = append(browse, feature.BrowseEvent{
				Dish:     dishes[entry.DishID],
				ViewedAt: entry.ViewedAt,
			})
		}
		store.PutUser(user.ID, user.Preferences, user.FavoriteIDs, browse)
	}
	store.PutExperiments(ds.Experiments)
}
