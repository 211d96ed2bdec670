package vectorindex

import (
	"context"
	"sort"
	"sync"

	"github.com/dishcovery/dishcovery/internal/embedding"
	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"
)

// MemoryIndex is an in-memory Index with exact cosine search.
type MemoryIndex struct {
	mu      sync.RWMutex
	version string
	entries map[string]Entry
}

// NewMemoryIndex creates an empty index pinned to the given embedding
// version.
func NewMemoryIndex(version string) *MemoryIndex {
	return &MemoryIndex{
		version: version,
		entries: make(map[string]Entry),
	}
}

func (m *MemoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if e.Embedding.Version != m.version {
			return apperrors.CrossVersionCompareError(m.version, e.Embedding.Version)
		}
		m.entries[e.DishID] = e
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, query embedding.VersionedEmbedding, limit int) ([]Hit, error) {
	if query.Version != m.version {
		return nil, apperrors.CrossVersionCompareError(m.version, query.Version)
	}
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.entries))
	order := make(map[string]Entry, len(m.entries))
	for id, e := range m.entries {
		score, err := query.Cosine(e.Embedding)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{DishID: id, Score: score})
		order[id] = e
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		ri, rj := order[hits[i].DishID].ReviewCount, order[hits[j].DishID].ReviewCount
		if ri != rj {
			return ri > rj
		}
		return hits[i].DishID < hits[j].DishID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) Close() error { return nil }

// Len reports the number of stored vectors.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
