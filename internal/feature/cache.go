package feature

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches a raw dish row from the persistence collaborator.
type Loader func(ctx context.Context, dishID string) (RawDish, error)

// Cache is a read-mostly dish-feature cache keyed by dish id. Entries are
// immutable once written (replace-on-invalidate), so concurrent readers
// never observe partial updates. A short TTL plus the row's UpdatedAt
// timestamp bound staleness.
type Cache struct {
	extractor *Extractor
	loader    Loader
	ttl       time.Duration
	maxSize   int

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   []string // LRU order

	group singleflight.Group
	now   func() time.Time
}

type cacheEntry struct {
	features  *DishFeatures
	updatedAt time.Time
	storedAt  time.Time
}

// NewCache creates a dish-feature cache backed by the given loader.
func NewCache(extractor *Extractor, loader Loader, ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Cache{
		extractor: extractor,
		loader:    loader,
		ttl:       ttl,
		maxSize:   maxSize,
		entries:   make(map[string]*cacheEntry),
		order:     make([]string, 0, maxSize),
		now:       time.Now,
	}
}

// Get returns the dish features for id, loading and extracting on miss.
// Concurrent misses for the same id are collapsed into one load.
func (c *Cache) Get(ctx context.Context, dishID string) (*DishFeatures, error) {
	c.mu.RLock()
	entry, ok := c.entries[dishID]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.storedAt) < c.ttl {
		return entry.features, nil
	}

	v, err, _ := c.group.Do(dishID, func() (any, error) {
		raw, err := c.loader(ctx, dishID)
		if err != nil {
			return nil, err
		}

		// A fresh entry may have been written while the caller held a
		// stale view; keep it if the row has not changed since.
		c.mu.RLock()
		cur, ok := c.entries[dishID]
		c.mu.RUnlock()
		if ok && cur.updatedAt.Equal(raw.UpdatedAt) && c.now().Sub(cur.storedAt) < c.ttl {
			return cur.features, nil
		}

		features, err := c.extractor.ExtractDishFeatures(raw)
		if err != nil {
			return nil, err
		}

		c.put(dishID, features, raw.UpdatedAt)
		return features, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DishFeatures), nil
}

// GetMany resolves features for all ids, dropping ids whose extraction or
// load fails. The skipped map reports dropped ids and their errors so the
// caller can log them.
func (c *Cache) GetMany(ctx context.Context, dishIDs []string) ([]*DishFeatures, map[string]error) {
	features := make([]*DishFeatures, 0, len(dishIDs))
	skipped := make(map[string]error)

	for _, id := range dishIDs {
		if ctx.Err() != nil {
			skipped[id] = ctx.Err()
			continue
		}
		f, err := c.Get(ctx, id)
		if err != nil {
			skipped[id] = err
			continue
		}
		features = append(features, f)
	}

	return features, skipped
}

// Invalidate removes an entry. The next Get reloads it.
func (c *Cache) Invalidate(dishID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[dishID]; !ok {
		return
	}
	delete(c.entries, dishID)
	for i, k := range c.order {
		if k == dishID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Size returns the current number of cached entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) put(dishID string, features *DishFeatures, updatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[dishID]; exists {
		c.entries[dishID] = &cacheEntry{features: features, updatedAt: updatedAt, storedAt: c.now()}
		c.moveToEnd(dishID)
		return
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[dishID] = &cacheEntry{features: features, updatedAt: updatedAt, storedAt: c.now()}
	c.order = append(c.order, dishID)
}

func (c *Cache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}
