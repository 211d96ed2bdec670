package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/dishcovery/dishcovery/internal/config"
	"github.com/dishcovery/dishcovery/internal/feature"
	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
)

func newEngine() *Engine {
	return NewEngine(config.ScoringConfig{
		QualityPriorMean:   3.5,
		QualityPriorWeight: 10,
	}, logger.Default())
}

func mustDish(t *testing.T, raw feature.RawDish) *feature.DishFeatures {
	t.Helper()
	if raw.UpdatedAt.IsZero() {
		raw.UpdatedAt = time.Now()
	}
	d, err := feature.NewExtractor(feature.DefaultExtractorConfig()).ExtractDishFeatures(raw)
	if err != nil {
		t.Fatalf("ExtractDishFeatures(%s) error = %v", raw.ID, err)
	}
	return d
}

func emptyUser(userID string) *feature.UserFeatures {
	return &feature.UserFeatures{
		UserID:    userID,
		Allergens: map[string]struct{}{},
		Favorites: feature.FavoriteFeatureSummary{
			TagWeights:  map[string]float64{},
			Canteens:    map[string]struct{}{},
			Ingredients: map[string]struct{}{},
			DishIDs:     map[string]struct{}{},
		},
		Browse: feature.BrowseFeatureSummary{
			TagWeights:     map[string]float64{},
			CanteenWeights: map[string]float64{},
			Ingredients:    map[string]struct{}{},
		},
	}
}

func flatWeights() RecommendationWeights {
	return RecommendationWeights{
		PreferenceMatch:    1,
		FavoriteSimilarity: 1,
		BrowseRelevance:    1,
		DishQuality:        1,
		Diversity:          1,
		SearchRelevance:    1,
	}
}

func TestQualityShrinkage(t *testing.T) {
	e := newEngine()

	oneFiveStar := mustDish(t, feature.RawDish{
		ID: "new", Name: "new", Spicy: 1, Sweet: 1, Salty: 1, Oily: 1,
		AvgRating: 5.0, ReviewCount: 1,
	})
	wellReviewed := mustDish(t, feature.RawDish{
		ID: "proven", Name: "proven", Spicy: 1, Sweet: 1, Salty: 1, Oily: 1,
		AvgRating: 4.5, ReviewCount: 200,
	})

	if e.QualityScore(oneFiveStar) >= e.QualityScore(wellReviewed) {
		t.Errorf("single 5-star review outranked a well-reviewed 4.5: %v vs %v",
			e.QualityScore(oneFiveStar), e.QualityScore(wellReviewed))
	}
}

func TestQualityMonotonicInRatingAndCount(t *testing.T) {
	e := newEngine()

	base := mustDish(t, feature.RawDish{
		ID: "base", Name: "base", Spicy: 1, Sweet: 1, Salty: 1, Oily: 1,
		AvgRating: 4.0, ReviewCount: 50,
	})
	betterRating := mustDish(t, feature.RawDish{
		ID: "better", Name: "better", Spicy: 1, Sweet: 1, Salty: 1, Oily: 1,
		AvgRating: 4.5, ReviewCount: 50,
	})
	moreReviews := mustDish(t, feature.RawDish{
		ID: "more", Name: "more", Spicy: 1, Sweet: 1, Salty: 1, Oily: 1,
		AvgRating: 4.0, ReviewCount: 500,
	})

	if e.QualityScore(betterRating) <= e.QualityScore(base) {
		t.Error("higher rating did not raise the quality score")
	}
	if e.QualityScore(moreReviews) <= e.QualityScore(base) {
		t.Error("more reviews of an above-prior rating did not raise the quality score")
	}
}

func TestDiversityMonotonicity(t *testing.T) {
	e := newEngine()

	candidate := mustDish(t, feature.RawDish{
		ID: "cand", Name: "cand", CanteenID: "north",
		Tags:  []string{"spicy", "noodles", "soup"},
		Spicy: 1, Sweet: 1, Salty: 1, Oily: 1, AvgRating: 4, ReviewCount: 10,
	})
	nearDuplicate := mustDish(t, feature.RawDish{
		ID: "dup", Name: "dup", CanteenID: "north",
		Tags:  []string{"spicy", "noodles"},
		Spicy: 1, Sweet: 1, Salty: 1, Oily: 1, AvgRating: 4, ReviewCount: 10,
	})
	unrelated := mustDish(t, feature.RawDish{
		ID: "other", Name: "other", CanteenID: "south",
		Tags:  []string{"dessert"},
		Spicy: 1, Sweet: 1, Salty: 1, Oily: 1, AvgRating: 4, ReviewCount: 10,
	})

	before := e.DiversityScore(candidate, []*feature.DishFeatures{unrelated})
	after := e.DiversityScore(candidate, []*feature.DishFeatures{unrelated, nearDuplicate})

	if after > before {
		t.Errorf("adding a near-duplicate raised the diversity score: %v -> %v", before, after)
	}
	if after >= 1 {
		t.Errorf("near-duplicate not penalized, score = %v", after)
	}
	if got := e.DiversityScore(candidate, nil); got != 1 {
		t.Errorf("DiversityScore with empty selection = %v, want 1", got)
	}
}

func TestWeightZeroDisablesSignal(t *testing.T) {
	e := newEngine()
	dish := mustDish(t, feature.RawDish{
		ID: "d1", Name: "d1", CanteenID: "north",
		Tags:  []string{"spicy"},
		Spicy: 3, Sweet: 1, Salty: 1, Oily: 1, AvgRating: 4, ReviewCount: 30,
	})

	withPrefs := emptyUser("u1")
	withPrefs.Preferences = &feature.UserPreferenceFeatures{
		Tags: map[string]struct{}{"spicy": {}},
	}
	withoutPrefs := emptyUser("u1")

	weights := flatWeights()
	weights.PreferenceMatch = 0

	a, err := e.Score(dish, withPrefs, weights, Context{})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	b, err := e.Score(dish, withoutPrefs, weights, Context{})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if a.Score != b.Score {
		t.Errorf("zero preference weight still changed the score: %v vs %v", a.Score, b.Score)
	}
}

func TestPreferenceScoreNoPreferences(t *testing.T) {
	e := newEngine()
	dish := mustDish(t, feature.RawDish{
		ID: "d1", Name: "d1", Spicy: 1, Sweet: 1, Salty: 1, Oily: 1, AvgRating: 4, ReviewCount: 5,
	})

	sd, err := e.Score(dish, emptyUser("u1"), flatWeights(), Context{})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if sd.Breakdown.Preference != 0 || sd.Breakdown.Favorite != 0 || sd.Breakdown.Browse != 0 {
		t.Errorf("signal-free user produced nonzero personalization terms: %+v", sd.Breakdown)
	}
}

func TestSearchScore(t *testing.T) {
	e := newEngine()
	dish := mustDish(t, feature.RawDish{
		ID: "d1", Name: "Spicy Beef Noodles", CanteenID: "north-canteen", Window: "lunch",
		Tags:        []string{"spicy", "noodles"},
		Ingredients: []string{"beef", "chili"},
		Spicy:       3, Sweet: 1, Salty: 2, Oily: 2, AvgRating: 4.2, ReviewCount: 40,
	})
	user := emptyUser("u1")
	weights := flatWeights()

	matched, err := e.Score(dish, user, weights, Context{SearchKeyword: "spicy noodles"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	missed, err := e.Score(dish, user, weights, Context{SearchKeyword: "sushi"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	none, err := e.Score(dish, user, weights, Context{})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if matched.Breakdown.Search <= missed.Breakdown.Search {
		t.Errorf("matching keyword did not outscore a miss: %v vs %v",
			matched.Breakdown.Search, missed.Breakdown.Search)
	}
	if none.Breakdown.Search != 0 {
		t.Errorf("empty keyword produced search score %v, want 0", none.Breakdown.Search)
	}
}

func TestScoreRejectsCorruptCandidate(t *testing.T) {
	e := newEngine()

	_, err := e.Score(nil, emptyUser("u1"), flatWeights(), Context{})
	if err == nil {
		t.Error("Score(nil dish) succeeded, want error")
	}

	corrupt := mustDish(t, feature.RawDish{
		ID: "d1", Name: "d1", Spicy: 1, Sweet: 1, Salty: 1, Oily: 1, AvgRating: 4, ReviewCount: 5,
	})
	corrupt.Taste.Spicy = math.NaN()
	_, err = e.Score(corrupt, emptyUser("u1"), flatWeights(), Context{})
	if !apperrors.IsCode(err, apperrors.CodeInvalidFeatureRange) {
		t.Errorf("Score(NaN taste) error = %v, want INVALID_FEATURE_RANGE", err)
	}
}

func TestRediversifyMatchesFullScore(t *testing.T) {
	e := newEngine()
	weights := flatWeights()
	user := emptyUser("u1")

	candidate := mustDish(t, feature.RawDish{
		ID: "cand", Name: "cand", CanteenID: "north",
		Tags:  []string{"spicy", "noodles"},
		Spicy: 2, Sweet: 1, Salty: 2, Oily: 1, AvgRating: 4.1, ReviewCount: 25,
	})
	selected := mustDish(t, feature.RawDish{
		ID: "sel", Name: "sel", CanteenID: "north",
		Tags:  []string{"spicy"},
		Spicy: 2, Sweet: 1, Salty: 2, Oily: 1, AvgRating: 4.0, ReviewCount: 25,
	})

	base, err := e.Score(candidate, user, weights, Context{})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	incremental := e.Rediversify(base, []*feature.DishFeatures{selected}, weights)

	full, err := e.Score(candidate, user, weights, Context{
		AlreadySelected: []*feature.DishFeatures{selected},
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if math.Abs(incremental.Score-full.Score) > 1e-12 {
		t.Errorf("Rediversify() = %v, full Score() = %v", incremental.Score, full.Score)
	}
}

func TestLessTieBreaks(t *testing.T) {
	a := ScoredDish{DishID: "a", Score: 1, Breakdown: ScoreBreakdown{Quality: 0.5}}
	b := ScoredDish{DishID: "b", Score: 1, Breakdown: ScoreBreakdown{Quality: 0.7}}
	c := ScoredDish{DishID: "c", Score: 1, Breakdown: ScoreBreakdown{Quality: 0.7}}

	if !Less(b, a) {
		t.Error("higher quality did not win the score tie")
	}
	if !Less(b, c) {
		t.Error("lexicographic id did not break the full tie")
	}
	if Less(a, ScoredDish{DishID: "z", Score: 2}) {
		t.Error("lower score ranked above higher score")
	}
}
