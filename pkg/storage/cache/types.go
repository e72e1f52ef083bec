package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/claphost/pkg/clap"
	"github.com/platinummonkey/claphost/pkg/observability"
)

// Entry is the cached outcome of loading one library.
type Entry struct {
	Version            clap.Version          `json:"clap_version"`
	Plugins            []clap.PluginMetadata `json:"plugins"`
	HasPresetDiscovery bool                  `json:"has_preset_discovery"`
	Error              string                `json:"error,omitempty"`
}

// Cache stores Entries by Key.
type Cache interface {
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key Key) (*Entry, error)
	Set(ctx context.Context, key Key, entry *Entry) error
	Delete(ctx context.Context, key Key) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats represents cache statistics
type Stats struct {
	Backend   string
	Hits      int64
	Misses    int64
	HitRate   float64
	ItemCount int64
}

// Config holds cache configuration
type Config struct {
	Backend  string        // "memory", "redis" or "none"
	Size     int           // Max entries for the memory backend
	TTL      time.Duration // Entry lifetime
	RedisURL string
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: "memory",
		Size:    1024,
		TTL:     24 * time.Hour,
	}
}

// New builds the configured cache. It returns nil, nil for the "none"
// backend.
func New(config *Config, metrics *observability.Metrics) (Cache, error) {
	if config == nil {
		config = DefaultConfig()
	}
	switch config.Backend {
	case "none", "":
		return nil, nil
	case "memory":
		return NewMemoryCache(config, metrics), nil
	case "redis":
		c, err := NewRedisCache(config, metrics)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", config.Backend)
	}
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
