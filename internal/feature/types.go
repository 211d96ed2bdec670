// Package feature converts raw persistence rows into the normalized
// feature snapshots consumed by recall and scoring.
package feature

import "time"

// Taste scalars and ratings are normalized to this range at the source;
// values outside it indicate upstream corruption and fail extraction.
const (
	TasteMin  = 0.0
	TasteMax  = 5.0
	RatingMax = 5.0
)

// RawDish is a dish row as supplied by the persistence collaborator,
// including its review aggregates.
type RawDish struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	CanteenID   string    `yaml:"canteen_id"`
	Window      string    `yaml:"window"`
	Tags        []string  `yaml:"tags"`
	Ingredients []string  `yaml:"ingredients"`
	Allergens   []string  `yaml:"allergens"`
	Price       float64   `yaml:"price"`
	Spicy       float64   `yaml:"spicy"`
	Sweet       float64   `yaml:"sweet"`
	Salty       float64   `yaml:"salty"`
	Oily        float64   `yaml:"oily"`
	AvgRating   float64   `yaml:"avg_rating"`
	ReviewCount int       `yaml:"review_count"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// RawPreferences is a user preference row. All fields are optional;
// a user may have stated only a subset of their preferences.
type RawPreferences struct {
	Tags      []string `yaml:"tags"`
	Canteens  []string `yaml:"canteens"`
	Allergens []string `yaml:"allergens"`
	Spicy     *float64 `yaml:"spicy"`
	Sweet     *float64 `yaml:"sweet"`
	Salty     *float64 `yaml:"salty"`
	Oily      *float64 `yaml:"oily"`
	PriceMin  *float64 `yaml:"price_min"`
	PriceMax  *float64 `yaml:"price_max"`
}

// BrowseEvent is one browse-history row, joined with its dish by the
// persistence layer.
type BrowseEvent struct {
	Dish     RawDish   `yaml:"dish"`
	ViewedAt time.Time `yaml:"viewed_at"`
}

// Taste holds the four taste-intensity scalars.
type Taste struct {
	Spicy float64
	Sweet float64
	Salty float64
	Oily  float64
}

// DishFeatures is an immutable per-dish snapshot derived from persistence
// at read time. It is never mutated after construction.
type DishFeatures struct {
	ID          string
	Name        string
	Description string
	CanteenID   string
	Window      string
	Tags        []string
	Ingredients map[string]struct{}
	Allergens   map[string]struct{}
	Price       float64
	Taste       Taste
	AvgRating   float64
	ReviewCount int
	UpdatedAt   time.Time

	tagSet map[string]struct{}
}

// HasTag reports whether the dish carries the given tag.
func (d *DishFeatures) HasTag(tag string) bool {
	_, ok := d.tagSet[tag]
	return ok
}

// SharedTags counts tags the dish shares with another dish.
func (d *DishFeatures) SharedTags(other *DishFeatures) int {
	n := 0
	for tag := range d.tagSet {
		if other.HasTag(tag) {
			n++
		}
	}
	return n
}

// ContainsAnyAllergen reports whether the dish's allergen set intersects
// the given set. Used as the hard filter in every recall strategy.
func (d *DishFeatures) ContainsAnyAllergen(allergens map[string]struct{}) bool {
	for a := range allergens {
		if _, ok := d.Allergens[a]; ok {
			return true
		}
	}
	return false
}

// UserPreferenceFeatures holds a user's explicitly stated preferences.
// Nil on UserFeatures means the user never set any.
type UserPreferenceFeatures struct {
	Tags     map[string]struct{}
	Canteens map[string]struct{}
	Spicy    *float64
	Sweet    *float64
	Salty    *float64
	Oily     *float64
	PriceMin *float64
	PriceMax *float64
}

// FavoriteFeatureSummary aggregates a user's favorited dishes. Favorites
// are an explicit, undated signal, so tag weights carry no decay.
type FavoriteFeatureSummary struct {
	TagWeights  map[string]float64
	Canteens    map[string]struct{}
	Ingredients map[string]struct{}
	Taste       Taste
	AvgPrice    float64
	DishIDs     map[string]struct{}
	Count       int
}

// BrowseFeatureSummary aggregates browse history with recency decay.
// All weights are non-negative and strictly decrease with event age.
type BrowseFeatureSummary struct {
	TagWeights     map[string]float64
	CanteenWeights map[string]float64
	Ingredients    map[string]struct{}
	Taste          Taste
	RecentDishIDs  []string
	TotalWeight    float64
}

// UserFeatures is a per-user snapshot combining the three independently
// persisted signal sources plus the allergen hard-filter set.
type UserFeatures struct {
	UserID      string
	Preferences *UserPreferenceFeatures
	Favorites   FavoriteFeatureSummary
	Browse      BrowseFeatureSummary
	Allergens   map[string]struct{}
}

// HasSignals reports whether any personalization signal exists for this
// user. Without signals the ranking is driven by dish quality alone.
func (u *UserFeatures) HasSignals() bool {
	return u.Preferences != nil || u.Favorites.Count > 0 || u.Browse.TotalWeight > 0
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}
