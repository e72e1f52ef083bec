package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/claphost/pkg/clap"
)

// ErrNotFound is returned when no record exists for a library path.
var ErrNotFound = errors.New("library not found")

// LibraryRecord is what the index knows about one plugin library file.
type LibraryRecord struct {
	ScanID             string                `json:"scan_id" yaml:"scan_id"`
	Path               string                `json:"path" yaml:"path"`
	ModTime            time.Time             `json:"mod_time" yaml:"mod_time"`
	Size               int64                 `json:"size" yaml:"size"`
	Version            clap.Version          `json:"clap_version" yaml:"clap_version"`
	Plugins            []clap.PluginMetadata `json:"plugins" yaml:"plugins"`
	HasPresetDiscovery bool                  `json:"has_preset_discovery" yaml:"has_preset_discovery"`
	// Error is set when the library could not be loaded or described.
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	IndexedAt time.Time `json:"indexed_at" yaml:"indexed_at"`
}

// Failed reports whether indexing the library failed.
func (r *LibraryRecord) Failed() bool {
	return r.Error != ""
}

// LibraryReader reads index records.
type LibraryReader interface {
	Get(ctx context.Context, path string) (*LibraryRecord, error)
	List(ctx context.Context) ([]*LibraryRecord, error)
	// FindPlugin returns the libraries that provide the plugin ID.
	FindPlugin(ctx context.Context, pluginID string) ([]*LibraryRecord, error)
}

// LibraryWriter writes index records.
type LibraryWriter interface {
	// Save inserts or replaces the record for record.Path.
	Save(ctx context.Context, record *LibraryRecord) error
	Delete(ctx context.Context, path string) error
}

// Store is the persistent plugin index.
type Store interface {
	LibraryReader
	LibraryWriter
	Close() error
}

// Config for the SQL store
type Config struct {
	Driver       string // "sqlite3" or "postgres"
	DSN          string
	MaxOpenConns int
	Timeout      time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:       "sqlite3",
		DSN:          ":memory:",
		MaxOpenConns: 10,
		Timeout:      10 * time.Second,
	}
}
