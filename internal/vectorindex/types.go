// Package vectorindex stores dish embeddings and answers nearest-neighbour
// queries for the vector recall path. Two implementations exist: an
// in-memory index for tests and small deployments, and a Qdrant-backed
// index for production.
package vectorindex

import (
	"context"

	"github.com/dishcovery/dishcovery/internal/embedding"
)

// Entry is a single dish vector with the metadata the recall path needs.
type Entry struct {
	DishID      string
	Embedding   embedding.VersionedEmbedding
	ReviewCount int
}

// Hit is one search result, ordered by similarity.
type Hit struct {
	DishID string
	Score  float64
}

// Index is the vector store used by the vector recall strategy.
type Index interface {
	// Upsert inserts or replaces dish vectors. All entries must share the
	// index's embedding version.
	Upsert(ctx context.Context, entries []Entry) error

	// Search returns up to limit dishes nearest to the query vector,
	// best first. The query version must match the stored version.
	Search(ctx context.Context, query embedding.VersionedEmbedding, limit int) ([]Hit, error)

	// Close releases any underlying connections.
	Close() error
}
