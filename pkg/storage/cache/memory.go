package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/claphost/pkg/observability"
)

const memoryBackend = "memory"

// MemoryCache is an in-process LRU cache with per-entry expiry.
type MemoryCache struct {
	cache   *lru.LRU[string, *Entry]
	metrics *observability.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewMemoryCache creates a cache holding at most config.Size entries.
func NewMemoryCache(config *Config, metrics *observability.Metrics) *MemoryCache {
	size := config.Size
	if size < 1 {
		size = DefaultConfig().Size
	}
	return &MemoryCache{
		cache:   lru.NewLRU[string, *Entry](size, nil, config.TTL),
		metrics: metrics,
	}
}

// Get retrieves a cached entry
func (c *MemoryCache) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	entry, ok := c.cache.Get(key.String())
	if !ok {
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.WithLabelValues(memoryBackend).Inc()
		}
		return nil, ErrCacheMiss
	}

	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(memoryBackend).Inc()
	}
	return entry, nil
}

// Set stores an entry
func (c *MemoryCache) Set(ctx context.Context, key Key, entry *Entry) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	c.cache.Add(key.String(), entry)
	return nil
}

// Delete removes an entry
func (c *MemoryCache) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	c.cache.Remove(key.String())
	return nil
}

// Stats returns cache statistics
func (c *MemoryCache) Stats(ctx context.Context) (*Stats, error) {
	hits, misses := c.hits.Load(), c.misses.Load()
	return &Stats{
		Backend:   memoryBackend,
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate(hits, misses),
		ItemCount: int64(c.cache.Len()),
	}, nil
}

// Close releases resources
func (c *MemoryCache) Close() error {
	c.cache.Purge()
	return nil
}
