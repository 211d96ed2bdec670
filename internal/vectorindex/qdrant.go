package vectorindex

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/dishcovery/dishcovery/internal/config"
	"github.com/dishcovery/dishcovery/internal/embedding"
	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
)

const denseVectorName = "dense"

// QdrantIndex is a Qdrant-backed Index. Each dish is one point in a
// single named dense vector space with cosine distance; the dish id,
// embedding version and review count live in the payload.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	version    string
	dim        int
	log        *logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewQdrantIndex connects to Qdrant and ensures the dish collection
// exists with the expected vector size.
func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig, version string, dim int, log *logger.Logger) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "qdrant unavailable", err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		version:    version,
		dim:        dim,
		log:        log,
	}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnavailable, "qdrant unavailable", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {
				Size:     uint64(q.dim),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "creating dish collection", err)
	}
	q.log.Info("created dish collection", "collection", q.collection, "dim", q.dim)
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		if e.Embedding.Version != q.version {
			return apperrors.CrossVersionCompareError(q.version, e.Embedding.Version)
		}
		if len(e.Embedding.Vector) != q.dim {
			return apperrors.EmbeddingDimMismatchError(q.dim, len(e.Embedding.Vector))
		}
		points = append(points, &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(pointID(e.DishID)),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				denseVectorName: qdrant.NewVectorDense(e.Embedding.Vector),
			}),
			Payload: qdrant.NewValueMap(map[string]any{
				"dish_id":      e.DishID,
				"version":      e.Embedding.Version,
				"review_count": int64(e.ReviewCount),
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "upserting dish vectors", err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, query embedding.VersionedEmbedding, limit int) ([]Hit, error) {
	if query.Version != q.version {
		return nil, apperrors.CrossVersionCompareError(q.version, query.Version)
	}
	if len(query.Vector) != q.dim {
		return nil, apperrors.EmbeddingDimMismatchError(q.dim, len(query.Vector))
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(query.Vector),
		Using:          qdrant.PtrOf(denseVectorName),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{keywordCondition("version", q.version)},
		},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "qdrant unavailable", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id := payloadString(r.Payload, "dish_id")
		if id == "" {
			continue
		}
		hits = append(hits, Hit{DishID: id, Score: float64(r.Score)})
	}
	return hits, nil
}

func (q *QdrantIndex) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return q.client.Close()
}

// pointID derives a stable UUID for a dish so repeated upserts replace
// the same point.
func pointID(dishID string) string {
	sum := sha256.Sum256([]byte(dishID))
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}
