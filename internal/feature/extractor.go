package feature

import (
	"math"
	"sort"
	"time"

	"github.com/dishcovery/dishcovery/internal/pkg/errors"
)

// ExtractorConfig configures user-feature aggregation.
type ExtractorConfig struct {
	// BrowseHalfLife is the age at which a browse event's weight halves.
	BrowseHalfLife time.Duration

	// BrowseHorizon is the age beyond which events contribute nothing
	// and are excluded entirely.
	BrowseHorizon time.Duration

	// RecentDishCap bounds the recent-dish-id list, most-recent first.
	RecentDishCap int
}

// DefaultExtractorConfig returns sensible aggregation defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		BrowseHalfLife: 7 * 24 * time.Hour,
		BrowseHorizon:  30 * 24 * time.Hour,
		RecentDishCap:  50,
	}
}

// Extractor is a pure transform over provided inputs; it performs no
// network or persistence calls.
type Extractor struct {
	cfg ExtractorConfig
	now func() time.Time
}

// NewExtractor creates a feature extractor.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.BrowseHalfLife <= 0 {
		cfg.BrowseHalfLife = DefaultExtractorConfig().BrowseHalfLife
	}
	if cfg.BrowseHorizon <= 0 {
		cfg.BrowseHorizon = DefaultExtractorConfig().BrowseHorizon
	}
	if cfg.RecentDishCap <= 0 {
		cfg.RecentDishCap = DefaultExtractorConfig().RecentDishCap
	}
	return &Extractor{
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// ExtractDishFeatures builds the immutable scoring snapshot for one dish.
// Bounds are enforced upstream; a value outside the declared range fails
// fast here instead of silently corrupting downstream scoring.
func (e *Extractor) ExtractDishFeatures(raw RawDish) (*DishFeatures, error) {
	if raw.ID == "" {
		return nil, errors.ValidationError("dish id is required")
	}

	for field, v := range map[string]float64{
		"spicy": raw.Spicy,
		"sweet": raw.Sweet,
		"salty": raw.Salty,
		"oily":  raw.Oily,
	} {
		if v < TasteMin || v > TasteMax {
			return nil, errors.InvalidFeatureRangeError(field, v).WithDetail("dish_id", raw.ID)
		}
	}
	if raw.Price < 0 {
		return nil, errors.InvalidFeatureRangeError("price", raw.Price).WithDetail("dish_id", raw.ID)
	}
	if raw.AvgRating < 0 || raw.AvgRating > RatingMax {
		return nil, errors.InvalidFeatureRangeError("avg_rating", raw.AvgRating).WithDetail("dish_id", raw.ID)
	}
	if raw.ReviewCount < 0 {
		return nil, errors.InvalidFeatureRangeError("review_count", float64(raw.ReviewCount)).WithDetail("dish_id", raw.ID)
	}

	tags := make([]string, 0, len(raw.Tags))
	for _, t := range raw.Tags {
		if t != "" {
			tags = append(tags, t)
		}
	}

	return &DishFeatures{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		CanteenID:   raw.CanteenID,
		Window:      raw.Window,
		Tags:        tags,
		Ingredients: toSet(raw.Ingredients),
		Allergens:   toSet(raw.Allergens),
		Price:       raw.Price,
		Taste: Taste{
			Spicy: raw.Spicy,
			Sweet: raw.Sweet,
			Salty: raw.Salty,
			Oily:  raw.Oily,
		},
		AvgRating:   raw.AvgRating,
		ReviewCount: raw.ReviewCount,
		UpdatedAt:   raw.UpdatedAt,
		tagSet:      toSet(tags),
	}, nil
}

// ExtractUserFeatures builds the per-request user snapshot from the three
// independently persisted sources. prefs may be nil; empty favorite and
// browse inputs yield zero-valued summaries, not errors.
func (e *Extractor) ExtractUserFeatures(userID string, prefs *RawPreferences, favorites []RawDish, browse []BrowseEvent) (*UserFeatures, error) {
	if userID == "" {
		return nil, errors.ValidationError("user id is required")
	}

	user := &UserFeatures{
		UserID:    userID,
		Allergens: make(map[string]struct{}),
	}

	if prefs != nil {
		user.Preferences = extractPreferences(prefs)
		for a := range toSet(prefs.Allergens) {
			user.Allergens[a] = struct{}{}
		}
	}

	fav, err := e.summarizeFavorites(favorites)
	if err != nil {
		return nil, err
	}
	user.Favorites = fav

	br, err := e.summarizeBrowse(browse)
	if err != nil {
		return nil, err
	}
	user.Browse = br

	return user, nil
}

func extractPreferences(raw *RawPreferences) *UserPreferenceFeatures {
	return &UserPreferenceFeatures{
		Tags:     toSet(raw.Tags),
		Canteens: toSet(raw.Canteens),
		Spicy:    raw.Spicy,
		Sweet:    raw.Sweet,
		Salty:    raw.Salty,
		Oily:     raw.Oily,
		PriceMin: raw.PriceMin,
		PriceMax: raw.PriceMax,
	}
}

// summarizeFavorites aggregates without decay: favorites are explicit and
// undated. Tag weights are occurrence counts; taste and price are plain
// arithmetic means.
func (e *Extractor) summarizeFavorites(favorites []RawDish) (FavoriteFeatureSummary, error) {
	sum := FavoriteFeatureSummary{
		TagWeights:  make(map[string]float64),
		Canteens:    make(map[string]struct{}),
		Ingredients: make(map[string]struct{}),
		DishIDs:     make(map[string]struct{}),
	}

	for _, raw := range favorites {
		dish, err := e.ExtractDishFeatures(raw)
		if err != nil {
			return FavoriteFeatureSummary{}, err
		}

		for _, tag := range dish.Tags {
			sum.TagWeights[tag]++
		}
		if dish.CanteenID != "" {
			sum.Canteens[dish.CanteenID] = struct{}{}
		}
		for ing := range dish.Ingredients {
			sum.Ingredients[ing] = struct{}{}
		}
		sum.Taste.Spicy += dish.Taste.Spicy
		sum.Taste.Sweet += dish.Taste.Sweet
		sum.Taste.Salty += dish.Taste.Salty
		sum.Taste.Oily += dish.Taste.Oily
		sum.AvgPrice += dish.Price
		sum.DishIDs[dish.ID] = struct{}{}
		sum.Count++
	}

	if sum.Count > 0 {
		n := float64(sum.Count)
		sum.Taste.Spicy /= n
		sum.Taste.Sweet /= n
		sum.Taste.Salty /= n
		sum.Taste.Oily /= n
		sum.AvgPrice /= n
	}

	return sum, nil
}

// summarizeBrowse aggregates with exponential recency decay. Each event
// contributes weight 0.5^(age/halfLife) to its dish's tags and canteen;
// events older than the horizon are excluded entirely.
func (e *Extractor) summarizeBrowse(events []BrowseEvent) (BrowseFeatureSummary, error) {
	sum := BrowseFeatureSummary{
		TagWeights:     make(map[string]float64),
		CanteenWeights: make(map[string]float64),
		Ingredients:    make(map[string]struct{}),
	}

	now := e.now()

	// Most-recent first, for both decay weighting consistency and the
	// capped recent-id list.
	sorted := make([]BrowseEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ViewedAt.After(sorted[j].ViewedAt)
	})

	var tasteWeight float64
	seen := make(map[string]struct{})

	for _, ev := range sorted {
		age := now.Sub(ev.ViewedAt)
		if age < 0 {
			age = 0
		}
		if age > e.cfg.BrowseHorizon {
			continue
		}

		dish, err := e.ExtractDishFeatures(ev.Dish)
		if err != nil {
			return BrowseFeatureSummary{}, err
		}

		w := math.Pow(0.5, age.Hours()/e.cfg.BrowseHalfLife.Hours())

		for _, tag := range dish.Tags {
			sum.TagWeights[tag] += w
		}
		if dish.CanteenID != "" {
			sum.CanteenWeights[dish.CanteenID] += w
		}
		for ing := range dish.Ingredients {
			sum.Ingredients[ing] = struct{}{}
		}

		sum.Taste.Spicy += w * dish.Taste.Spicy
		sum.Taste.Sweet += w * dish.Taste.Sweet
		sum.Taste.Salty += w * dish.Taste.Salty
		sum.Taste.Oily += w * dish.Taste.Oily
		tasteWeight += w
		sum.TotalWeight += w

		if _, ok := seen[dish.ID]; !ok && len(sum.RecentDishIDs) < e.cfg.RecentDishCap {
			sum.RecentDishIDs = append(sum.RecentDishIDs, dish.ID)
			seen[dish.ID] = struct{}{}
		}
	}

	if tasteWeight > 0 {
		sum.Taste.Spicy /= tasteWeight
		sum.Taste.Sweet /= tasteWeight
		sum.Taste.Salty /= tasteWeight
		sum.Taste.Oily /= tasteWeight
	}

	return sum, nil
}

// DecayWeight exposes the browse decay function for offline analysis.
func (e *Extractor) DecayWeight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	if age > e.cfg.BrowseHorizon {
		return 0
	}
	return math.Pow(0.5, age.Hours()/e.cfg.BrowseHalfLife.Hours())
}
