package embedding

import (
	"context"

	"github.com/dishcovery/dishcovery/internal/feature"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
)

// Gateway produces versioned embeddings for dishes and users. With the
// external path disabled it uses the internal encoder only; with it
// enabled it batches calls to the external service and degrades failed
// batches to fallback-tagged internal encodings instead of aborting the
// request (availability over purity).
type Gateway struct {
	cfg      ServiceConfig
	encoder  *Encoder
	external externalEncoder
	cache    Cache
	log      *logger.Logger
}

// NewGateway creates an embedding gateway. cache may be nil.
func NewGateway(cfg ServiceConfig, cache Cache, log *logger.Logger) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		encoder: NewEncoder(cfg.InternalDim),
		cache:   cache,
		log:     log,
	}
	if cfg.ExternalEnabled {
		g.external = NewClient(cfg)
	}
	return g
}

// newGatewayWithClient injects an external client. Intended for tests.
func newGatewayWithClient(cfg ServiceConfig, external externalEncoder, cache Cache, log *logger.Logger) *Gateway {
	g := NewGateway(cfg, cache, log)
	g.external = external
	if external != nil {
		g.cfg.ExternalEnabled = true
	}
	return g
}

// Version returns the version tag new dish embeddings will carry on the
// happy path.
func (g *Gateway) Version() string {
	if g.cfg.ExternalEnabled {
		return g.cfg.ExternalVersion
	}
	return InternalVersion
}

// Dim returns the vector dimension of happy-path embeddings.
func (g *Gateway) Dim() int {
	if g.cfg.ExternalEnabled {
		return g.cfg.ExternalDim
	}
	return g.cfg.InternalDim
}

// EmbedDishes embeds dishes preserving input order, batching at most
// BatchSize items per external call.
func (g *Gateway) EmbedDishes(ctx context.Context, dishes []*feature.DishFeatures) ([]VersionedEmbedding, error) {
	if len(dishes) == 0 {
		return nil, nil
	}

	result := make([]VersionedEmbedding, len(dishes))

	if !g.cfg.ExternalEnabled {
		for i, dish := range dishes {
			result[i] = g.cachedOrEncode(ctx, dish.ID, func() VersionedEmbedding {
				return g.encoder.EncodeDish(dish)
			})
		}
		return result, nil
	}

	// External path: resolve cache hits first, then batch the misses.
	missIdx := make([]int, 0, len(dishes))
	for i, dish := range dishes {
		if g.cache != nil {
			if emb, ok := g.cache.Get(ctx, dish.ID, g.cfg.ExternalVersion); ok {
				result[i] = emb
				continue
			}
		}
		missIdx = append(missIdx, i)
	}

	batchSize := g.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	for start := 0; start < len(missIdx); start += batchSize {
		end := start + batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batch := missIdx[start:end]

		texts := make([]string, len(batch))
		for j, idx := range batch {
			texts[j] = DishText(dishes[idx])
		}

		vectors, err := g.external.EmbedBatch(ctx, texts)
		if err != nil {
			// Degrade this batch to fallback encodings rather than
			// failing the whole request.
			g.log.Warn("external embedding batch failed, degrading to fallback",
				"batch_size", len(batch), "error", err)
			for _, idx := range batch {
				result[idx] = g.encoder.EncodeDishFallback(dishes[idx], g.cfg.FallbackVersion())
			}
			continue
		}

		for j, idx := range batch {
			emb := VersionedEmbedding{Vector: vectors[j], Version: g.cfg.ExternalVersion}
			result[idx] = emb
			if g.cache != nil {
				g.cache.Set(ctx, dishes[idx].ID, emb)
			}
		}
	}

	return result, nil
}

// EmbedUser embeds a single user profile. The user snapshot changes per
// request, so it is never cached.
func (g *Gateway) EmbedUser(ctx context.Context, user *feature.UserFeatures) (VersionedEmbedding, error) {
	if !g.cfg.ExternalEnabled {
		return g.encoder.EncodeUser(user), nil
	}

	vectors, err := g.external.EmbedBatch(ctx, []string{UserText(user)})
	if err != nil {
		g.log.Warn("external user embedding failed, degrading to fallback", "error", err)
		emb := g.encoder.EncodeUser(user)
		emb.Version = g.cfg.FallbackVersion()
		return emb, nil
	}

	return VersionedEmbedding{Vector: vectors[0], Version: g.cfg.ExternalVersion}, nil
}

func (g *Gateway) cachedOrEncode(ctx context.Context, id string, encode func() VersionedEmbedding) VersionedEmbedding {
	if g.cache != nil {
		if emb, ok := g.cache.Get(ctx, id, InternalVersion); ok {
			return emb
		}
	}
	emb := encode()
	if g.cache != nil {
		g.cache.Set(ctx, id, emb)
	}
	return emb
}
