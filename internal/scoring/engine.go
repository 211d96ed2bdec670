package scoring

import (
	"math"
	"strings"

	"github.com/dishcovery/dishcovery/internal/config"
	"github.com/dishcovery/dishcovery/internal/feature"
	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
)

// Diversity penalty mix: shared tags dominate, same canteen is a
// smaller repeat signal.
const (
	diversityTagShare     = 0.6
	diversityCanteenShare = 0.4
)

// Search field weights. A token matching several fields accumulates
// their weights, capped at 1.
const (
	searchNameWeight       = 0.4
	searchTagWeight        = 0.25
	searchCanteenWeight    = 0.15
	searchWindowWeight     = 0.1
	searchIngredientWeight = 0.1
	searchDescriptionBonus = 0.1
)

// ScoreBreakdown holds the six unweighted component scores, each in
// [0,1], kept for explainability and offline evaluation.
type ScoreBreakdown struct {
	Preference float64 `json:"preference"`
	Favorite   float64 `json:"favorite"`
	Browse     float64 `json:"browse"`
	Quality    float64 `json:"quality"`
	Diversity  float64 `json:"diversity"`
	Search     float64 `json:"search"`
}

// ScoredDish pairs a dish with its weighted final score and the
// breakdown behind it.
type ScoredDish struct {
	Dish      *feature.DishFeatures `json:"-"`
	DishID    string                `json:"dish_id"`
	Score     float64               `json:"score"`
	Breakdown ScoreBreakdown        `json:"breakdown"`
}

// Context carries the per-request scoring inputs that are not part of
// the user snapshot.
type Context struct {
	SearchKeyword string

	// AlreadySelected are the dishes chosen earlier in this ranking
	// pass. The diversity term is computed against them, so it changes
	// as the final list is built.
	AlreadySelected []*feature.DishFeatures
}

// Engine computes dish scores. It is stateless across requests.
type Engine struct {
	priorMean   float64
	priorWeight float64
	log         *logger.Logger
}

func NewEngine(cfg config.ScoringConfig, log *logger.Logger) *Engine {
	return &Engine{
		priorMean:   cfg.QualityPriorMean,
		priorWeight: cfg.QualityPriorWeight,
		log:         log,
	}
}

// Score computes the full breakdown and weighted score for one
// candidate. Candidates with corrupt mandatory fields return an
// error; the caller drops them and keeps the request alive.
func (e *Engine) Score(d *feature.DishFeatures, user *feature.UserFeatures, weights RecommendationWeights, sctx Context) (ScoredDish, error) {
	if err := validateCandidate(d); err != nil {
		return ScoredDish{}, err
	}

	breakdown := ScoreBreakdown{
		Preference: e.preferenceScore(d, user.Preferences),
		Favorite:   e.favoriteScore(d, user.Favorites),
		Browse:     e.browseScore(d, user.Browse),
		Quality:    e.QualityScore(d),
		Diversity:  e.DiversityScore(d, sctx.AlreadySelected),
		Search:     e.searchScore(d, sctx.SearchKeyword),
	}

	return ScoredDish{
		Dish:      d,
		DishID:    d.ID,
		Score:     weightedSum(breakdown, weights),
		Breakdown: breakdown,
	}, nil
}

// Rediversify recomputes only the diversity term of an already scored
// dish against a new selected set. The other five terms are stable per
// candidate, so the greedy selection loop calls this instead of Score.
func (e *Engine) Rediversify(sd ScoredDish, selected []*feature.DishFeatures, weights RecommendationWeights) ScoredDish {
	sd.Breakdown.Diversity = e.DiversityScore(sd.Dish, selected)
	sd.Score = weightedSum(sd.Breakdown, weights)
	return sd
}

// Less orders scored dishes for ranking: score descending, ties broken
// by quality descending, then dish id ascending.
func Less(a, b ScoredDish) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Breakdown.Quality != b.Breakdown.Quality {
		return a.Breakdown.Quality > b.Breakdown.Quality
	}
	return a.DishID < b.DishID
}

func weightedSum(b ScoreBreakdown, w RecommendationWeights) float64 {
	return w.PreferenceMatch*b.Preference +
		w.FavoriteSimilarity*b.Favorite +
		w.BrowseRelevance*b.Browse +
		w.DishQuality*b.Quality +
		w.Diversity*b.Diversity +
		w.SearchRelevance*b.Search
}

func validateCandidate(d *feature.DishFeatures) error {
	if d == nil || d.ID == "" {
		return apperrors.New(apperrors.CodeValidation, "candidate dish has no id")
	}
	for _, v := range []float64{d.Taste.Spicy, d.Taste.Sweet, d.Taste.Salty, d.Taste.Oily, d.AvgRating, d.Price} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return apperrors.InvalidFeatureRangeError("taste", v).WithDetail("dish_id", d.ID)
		}
	}
	return nil
}

// preferenceScore averages the sub-signals the user actually stated:
// tag coverage, canteen match, taste closeness and price fit. A user
// with no preferences contributes 0, which is expected rather than an
// error.
func (e *Engine) preferenceScore(d *feature.DishFeatures, prefs *feature.UserPreferenceFeatures) float64 {
	if prefs == nil {
		return 0
	}

	var sum float64
	var n int

	if len(prefs.Tags) > 0 {
		matched := 0
		for _, tag := range d.Tags {
			if _, ok := prefs.Tags[tag]; ok {
				matched++
			}
		}
		sum += clamp01(float64(matched) / float64(len(prefs.Tags)))
		n++
	}
	if len(prefs.Canteens) > 0 {
		if _, ok := prefs.Canteens[d.CanteenID]; ok {
			sum += 1
		}
		n++
	}
	if closeness, ok := tasteCloseness(d.Taste, prefs); ok {
		sum += closeness
		n++
	}
	if prefs.PriceMin != nil || prefs.PriceMax != nil {
		sum += priceFit(d.Price, prefs.PriceMin, prefs.PriceMax)
		n++
	}

	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (e *Engine) favoriteScore(d *feature.DishFeatures, favs feature.FavoriteFeatureSummary) float64 {
	if favs.Count == 0 {
		return 0
	}

	sum := tagMassCovered(d.Tags, favs.TagWeights)
	n := 1

	if len(favs.Canteens) > 0 {
		if _, ok := favs.Canteens[d.CanteenID]; ok {
			sum += 1
		}
		n++
	}
	sum += 1 - tasteDistance(d.Taste, favs.Taste)/feature.TasteMax
	n++
	if favs.AvgPrice > 0 {
		sum += clamp01(1 - math.Abs(d.Price-favs.AvgPrice)/favs.AvgPrice)
		n++
	}

	return clamp01(sum / float64(n))
}

func (e *Engine) browseScore(d *feature.DishFeatures, browse feature.BrowseFeatureSummary) float64 {
	if browse.TotalWeight == 0 {
		return 0
	}

	sum := tagMassCovered(d.Tags, browse.TagWeights)
	n := 1

	if len(browse.CanteenWeights) > 0 {
		var canteenMass float64
		for _, w := range browse.CanteenWeights {
			canteenMass += w
		}
		if canteenMass > 0 {
			sum += clamp01(browse.CanteenWeights[d.CanteenID] / canteenMass)
		}
		n++
	}
	sum += 1 - tasteDistance(d.Taste, browse.Taste)/feature.TasteMax
	n++

	return clamp01(sum / float64(n))
}

// QualityScore shrinks the average rating toward the prior mean so a
// single 5-star review cannot dominate well-reviewed dishes, then
// scales by a review-count confidence factor.
func (e *Engine) QualityScore(d *feature.DishFeatures) float64 {
	n := float64(d.ReviewCount)
	shrunk := (e.priorWeight*e.priorMean + n*d.AvgRating) / (e.priorWeight + n)
	confidence := n / (n + e.priorWeight)
	return clamp01(shrunk / feature.RatingMax * confidence)
}

// DiversityScore penalizes candidates similar to dishes already chosen
// in this ranking pass. With nothing selected yet the score is 1.
func (e *Engine) DiversityScore(d *feature.DishFeatures, selected []*feature.DishFeatures) float64 {
	var maxPenalty float64
	for _, s := range selected {
		penalty := diversityTagShare * tagJaccard(d, s)
		if d.CanteenID != "" && d.CanteenID == s.CanteenID {
			penalty += diversityCanteenShare
		}
		if penalty > maxPenalty {
			maxPenalty = penalty
		}
	}
	return clamp01(1 - maxPenalty)
}

func (e *Engine) searchScore(d *feature.DishFeatures, keyword string) float64 {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(keyword)))
	if len(tokens) == 0 {
		return 0
	}

	name := strings.ToLower(d.Name)
	description := strings.ToLower(d.Description)
	canteen := strings.ToLower(d.CanteenID)
	window := strings.ToLower(d.Window)

	var total float64
	for _, tok := range tokens {
		var w float64
		if strings.Contains(name, tok) {
			w += searchNameWeight
		}
		for _, tag := range d.Tags {
			if strings.ToLower(tag) == tok {
				w += searchTagWeight
				break
			}
		}
		if strings.Contains(canteen, tok) {
			w += searchCanteenWeight
		}
		if strings.Contains(window, tok) {
			w += searchWindowWeight
		}
		for ing := range d.Ingredients {
			if strings.ToLower(ing) == tok {
				w += searchIngredientWeight
				break
			}
		}
		if strings.Contains(description, tok) {
			w += searchDescriptionBonus
		}
		total += math.Min(w, 1)
	}
	return clamp01(total / float64(len(tokens)))
}

// tagMassCovered is the share of the user's accumulated tag weight that
// the candidate's tags cover.
func tagMassCovered(tags []string, weights map[string]float64) float64 {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return 0
	}
	var covered float64
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		covered += weights[tag]
	}
	return clamp01(covered / total)
}

func tasteDistance(a, b feature.Taste) float64 {
	return (math.Abs(a.Spicy-b.Spicy) +
		math.Abs(a.Sweet-b.Sweet) +
		math.Abs(a.Salty-b.Salty) +
		math.Abs(a.Oily-b.Oily)) / 4
}

// tasteCloseness compares the dish's taste scalars against the subset
// the user stated. ok is false when none are stated.
func tasteCloseness(taste feature.Taste, prefs *feature.UserPreferenceFeatures) (float64, bool) {
	var dist float64
	var n int
	for _, pair := range []struct {
		want *float64
		got  float64
	}{
		{prefs.Spicy, taste.Spicy},
		{prefs.Sweet, taste.Sweet},
		{prefs.Salty, taste.Salty},
		{prefs.Oily, taste.Oily},
	} {
		if pair.want == nil {
			continue
		}
		dist += math.Abs(pair.got - *pair.want)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return clamp01(1 - dist/float64(n)/feature.TasteMax), true
}

func priceFit(price float64, min, max *float64) float64 {
	if min != nil && price < *min {
		return clamp01(1 - (*min-price)/math.Max(*min, 1))
	}
	if max != nil && price > *max {
		return clamp01(1 - (price-*max)/math.Max(*max, 1))
	}
	return 1
}

func tagJaccard(a, b *feature.DishFeatures) float64 {
	shared := a.SharedTags(b)
	union := len(a.Tags) + len(b.Tags) - shared
	if union <= 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
