package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/claphost/pkg/observability"
)

const (
	redisBackend   = "redis"
	redisKeyPrefix = "claphost:library:"
)

// RedisCache shares entries between hosts through Redis. Values are JSON.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewRedisCache connects to config.RedisURL.
func NewRedisCache(config *Config, metrics *observability.Metrics) (*RedisCache, error) {
	if config.RedisURL == "" {
		return nil, fmt.Errorf("no Redis URL provided")
	}
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to connect to redis: %v", ErrCacheUnavailable, err)
	}

	return NewRedisCacheFromClient(client, config.TTL, metrics), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, metrics: metrics}
}

// Client returns the underlying client, for health checks.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Get retrieves an entry from Redis
func (c *RedisCache) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	redisKey := redisKeyPrefix + key.String()

	data, err := c.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordMiss()
		return nil, ErrCacheMiss
	} else if err != nil {
		return nil, fmt.Errorf("%w: redis get failed: %v", ErrCacheUnavailable, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entries are dropped and treated as a miss.
		c.client.Del(ctx, redisKey)
		c.recordMiss()
		return nil, ErrCacheMiss
	}

	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(redisBackend).Inc()
	}
	return &entry, nil
}

func (c *RedisCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(redisBackend).Inc()
	}
}

// Set stores an entry in Redis
func (c *RedisCache) Set(ctx context.Context, key Key, entry *Entry) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key.String(), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set failed: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Delete removes an entry from Redis
func (c *RedisCache) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return c.client.Del(ctx, redisKeyPrefix+key.String()).Err()
}

// Stats returns cache statistics. ItemCount covers every library entry in the
// database, including ones written by other hosts.
func (c *RedisCache) Stats(ctx context.Context) (*Stats, error) {
	var count int64
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to count cache keys: %w", err)
	}

	hits, misses := c.hits.Load(), c.misses.Load()
	return &Stats{
		Backend:   redisBackend,
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate(hits, misses),
		ItemCount: count,
	}, nil
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
