package embedding

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dishcovery/dishcovery/internal/pkg/hash"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
)

// Cache stores embeddings keyed by entity id + version, so a version bump
// invalidates every stored vector. Entries are immutable once written.
type Cache interface {
	Get(ctx context.Context, id, version string) (VersionedEmbedding, bool)
	Set(ctx context.Context, id string, emb VersionedEmbedding)
}

// MemoryCache is an in-process LRU embedding cache.
type MemoryCache struct {
	mu      sync.RWMutex
	cache   map[string]VersionedEmbedding
	maxSize int
	order   []string // LRU order
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryCache{
		cache:   make(map[string]VersionedEmbedding),
		maxSize: maxSize,
		order:   make([]string, 0, maxSize),
	}
}

// Get retrieves an embedding from cache.
func (c *MemoryCache) Get(_ context.Context, id, version string) (VersionedEmbedding, bool) {
	key := hash.CacheKey(id, version)

	c.mu.RLock()
	emb, ok := c.cache[key]
	c.mu.RUnlock()

	if !ok {
		return VersionedEmbedding{}, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	// Copy so callers cannot mutate the cached vector.
	vec := make([]float32, len(emb.Vector))
	copy(vec, emb.Vector)
	return VersionedEmbedding{Vector: vec, Version: emb.Version}, true
}

// Set stores an embedding in cache.
func (c *MemoryCache) Set(_ context.Context, id string, emb VersionedEmbedding) {
	key := hash.CacheKey(id, emb.Version)

	vec := make([]float32, len(emb.Vector))
	copy(vec, emb.Vector)
	stored := VersionedEmbedding{Vector: vec, Version: emb.Version}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[key]; exists {
		c.cache[key] = stored
		c.moveToEnd(key)
		return
	}

	for len(c.cache) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}

	c.cache[key] = stored
	c.order = append(c.order, key)
}

// Size returns the current cache size.
func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *MemoryCache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}

// RedisCache is a Redis-backed embedding cache shared across processes.
type RedisCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCache connects to Redis and returns a cache. ttl of 0 means no
// expiry.
func NewRedisCache(url string, ttl time.Duration, log *logger.Logger) (*RedisCache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{
		client: client,
		prefix: "dish:embed:",
		ttl:    ttl,
		log:    log,
	}, nil
}

// Get retrieves an embedding; Redis errors degrade to a miss.
func (c *RedisCache) Get(ctx context.Context, id, version string) (VersionedEmbedding, bool) {
	key := c.prefix + hash.CacheKey(id, version)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Debug("redis embedding cache get failed", "error", err)
		}
		return VersionedEmbedding{}, false
	}

	var emb VersionedEmbedding
	if err := json.Unmarshal(data, &emb); err != nil {
		c.log.Warn("corrupt embedding cache entry", "key", key, "error", err)
		return VersionedEmbedding{}, false
	}

	return emb, true
}

// Set stores an embedding; failures are logged, never surfaced.
func (c *RedisCache) Set(ctx context.Context, id string, emb VersionedEmbedding) {
	key := c.prefix + hash.CacheKey(id, emb.Version)

	data, err := json.Marshal(emb)
	if err != nil {
		c.log.Warn("marshaling embedding cache entry failed", "error", err)
		return
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Debug("redis embedding cache set failed", "error", err)
	}
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
