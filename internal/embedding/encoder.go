package embedding

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/dishcovery/dishcovery/internal/feature"
)

// Head slots carry the dense numeric features; the remaining slots are a
// feature-hashed bag of tags, ingredients and canteen.
const headSlots = 6

// priceScale normalizes price into [0,1]; dishes above this price clamp.
const priceScale = 50.0

// Encoder is the internal deterministic feature-hashing encoder. It never
// fails on network grounds and always yields dim-length vectors.
type Encoder struct {
	dim int
}

// NewEncoder creates an encoder producing dim-length vectors.
func NewEncoder(dim int) *Encoder {
	if dim < headSlots+2 {
		dim = headSlots + 2
	}
	return &Encoder{dim: dim}
}

// Dim returns the output dimension.
func (e *Encoder) Dim() int {
	return e.dim
}

// EncodeDish encodes dish features into an internal-version embedding.
func (e *Encoder) EncodeDish(dish *feature.DishFeatures) VersionedEmbedding {
	v := make([]float32, e.dim)

	v[0] = float32(dish.Taste.Spicy / feature.TasteMax)
	v[1] = float32(dish.Taste.Sweet / feature.TasteMax)
	v[2] = float32(dish.Taste.Salty / feature.TasteMax)
	v[3] = float32(dish.Taste.Oily / feature.TasteMax)
	v[4] = float32(clamp01(dish.Price / priceScale))
	v[5] = float32(dish.AvgRating / feature.RatingMax)

	for _, tag := range dish.Tags {
		e.bump(v, "tag:"+tag, 1.0)
	}
	for ing := range dish.Ingredients {
		e.bump(v, "ing:"+ing, 0.5)
	}
	if dish.CanteenID != "" {
		e.bump(v, "canteen:"+dish.CanteenID, 1.0)
	}

	return VersionedEmbedding{Vector: l2Normalize(v), Version: InternalVersion}
}

// EncodeUser encodes a user's aggregate taste profile into the same space
// as EncodeDish, so cosine similarity is meaningful.
func (e *Encoder) EncodeUser(user *feature.UserFeatures) VersionedEmbedding {
	v := make([]float32, e.dim)

	taste := userTaste(user)
	v[0] = float32(taste.Spicy / feature.TasteMax)
	v[1] = float32(taste.Sweet / feature.TasteMax)
	v[2] = float32(taste.Salty / feature.TasteMax)
	v[3] = float32(taste.Oily / feature.TasteMax)
	if user.Favorites.Count > 0 {
		v[4] = float32(clamp01(user.Favorites.AvgPrice / priceScale))
	}
	// Slot 5 (quality) stays zero for users; it only discriminates dishes.

	if user.Preferences != nil {
		for tag := range user.Preferences.Tags {
			e.bump(v, "tag:"+tag, 1.0)
		}
		for canteen := range user.Preferences.Canteens {
			e.bump(v, "canteen:"+canteen, 1.0)
		}
	}
	for tag, w := range user.Favorites.TagWeights {
		e.bump(v, "tag:"+tag, w)
	}
	for canteen := range user.Favorites.Canteens {
		e.bump(v, "canteen:"+canteen, 0.5)
	}
	for tag, w := range user.Browse.TagWeights {
		e.bump(v, "tag:"+tag, 0.5*w)
	}
	for canteen, w := range user.Browse.CanteenWeights {
		e.bump(v, "canteen:"+canteen, 0.5*w)
	}
	for ing := range user.Favorites.Ingredients {
		e.bump(v, "ing:"+ing, 0.25)
	}

	return VersionedEmbedding{Vector: l2Normalize(v), Version: InternalVersion}
}

// EncodeDishFallback encodes with the fallback version tag, for entries
// the external service failed to produce.
func (e *Encoder) EncodeDishFallback(dish *feature.DishFeatures, fallbackVersion string) VersionedEmbedding {
	emb := e.EncodeDish(dish)
	emb.Version = fallbackVersion
	return emb
}

// DishText renders the canonical text form of a dish sent to the external
// embedding service. Field order is fixed so the text is deterministic.
func DishText(dish *feature.DishFeatures) string {
	tags := append([]string(nil), dish.Tags...)
	sort.Strings(tags)

	ings := make([]string, 0, len(dish.Ingredients))
	for ing := range dish.Ingredients {
		ings = append(ings, ing)
	}
	sort.Strings(ings)

	return fmt.Sprintf("%s | %s | canteen:%s window:%s | tags:%s | ingredients:%s | spicy:%.1f sweet:%.1f salty:%.1f oily:%.1f",
		dish.Name, dish.Description, dish.CanteenID, dish.Window,
		strings.Join(tags, ","), strings.Join(ings, ","),
		dish.Taste.Spicy, dish.Taste.Sweet, dish.Taste.Salty, dish.Taste.Oily)
}

// UserText renders the canonical text form of a user profile for the
// external embedding service.
func UserText(user *feature.UserFeatures) string {
	var b strings.Builder
	b.WriteString("user")

	if user.Preferences != nil {
		tags := make([]string, 0, len(user.Preferences.Tags))
		for tag := range user.Preferences.Tags {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		b.WriteString(" | prefers:" + strings.Join(tags, ","))
	}

	favTags := make([]string, 0, len(user.Favorites.TagWeights))
	for tag := range user.Favorites.TagWeights {
		favTags = append(favTags, tag)
	}
	sort.Strings(favTags)
	if len(favTags) > 0 {
		b.WriteString(" | favorites:" + strings.Join(favTags, ","))
	}

	browseTags := make([]string, 0, len(user.Browse.TagWeights))
	for tag := range user.Browse.TagWeights {
		browseTags = append(browseTags, tag)
	}
	sort.Strings(browseTags)
	if len(browseTags) > 0 {
		b.WriteString(" | browsed:" + strings.Join(browseTags, ","))
	}

	taste := userTaste(user)
	fmt.Fprintf(&b, " | spicy:%.1f sweet:%.1f salty:%.1f oily:%.1f",
		taste.Spicy, taste.Sweet, taste.Salty, taste.Oily)

	return b.String()
}

// userTaste blends the user's taste profile: stated preferences win,
// favorites fill gaps, browse history fills the rest.
func userTaste(user *feature.UserFeatures) feature.Taste {
	pick := func(pref *float64, fav, browse float64) float64 {
		if pref != nil {
			return *pref
		}
		if user.Favorites.Count > 0 {
			return fav
		}
		return browse
	}

	var p *feature.UserPreferenceFeatures
	if user.Preferences != nil {
		p = user.Preferences
	} else {
		p = &feature.UserPreferenceFeatures{}
	}

	return feature.Taste{
		Spicy: pick(p.Spicy, user.Favorites.Taste.Spicy, user.Browse.Taste.Spicy),
		Sweet: pick(p.Sweet, user.Favorites.Taste.Sweet, user.Browse.Taste.Sweet),
		Salty: pick(p.Salty, user.Favorites.Taste.Salty, user.Browse.Taste.Salty),
		Oily:  pick(p.Oily, user.Favorites.Taste.Oily, user.Browse.Taste.Oily),
	}
}

// bump adds weight to the hashed slot for key, with a sign derived from a
// second hash so collisions partially cancel instead of always inflating.
func (e *Encoder) bump(v []float32, key string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(key))
	sum := h.Sum64()

	slot := headSlots + int(sum%uint64(e.dim-headSlots))
	sign := float32(1)
	if (sum>>63)&1 == 1 {
		sign = -1
	}
	v[slot] += sign * float32(weight)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// l2Normalize normalizes a vector to unit length.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, x := range v {
		result[i] = x / norm
	}

	return result
}
