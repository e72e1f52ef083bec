package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/claphost/pkg/clap"
	"github.com/platinummonkey/claphost/pkg/observability"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS libraries (
		path                 TEXT PRIMARY KEY,
		scan_id              TEXT NOT NULL,
		mod_time             BIGINT NOT NULL,
		size                 BIGINT NOT NULL,
		clap_major           INTEGER NOT NULL,
		clap_minor           INTEGER NOT NULL,
		clap_revision        INTEGER NOT NULL,
		has_preset_discovery BOOLEAN NOT NULL,
		error                TEXT NOT NULL,
		indexed_at           BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS plugins (
		library_path TEXT NOT NULL,
		position     INTEGER NOT NULL,
		plugin_id    TEXT NOT NULL,
		metadata     TEXT NOT NULL,
		PRIMARY KEY (library_path, position)
	)`,
	`CREATE INDEX IF NOT EXISTS plugins_plugin_id ON plugins (plugin_id)`,
}

const libraryColumns = `path, scan_id, mod_time, size, clap_major, clap_minor, clap_revision, has_preset_discovery, error, indexed_at`

// SQLStore keeps the index in SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	driver  string
	metrics *observability.Metrics
}

// OpenSQLStore connects to the configured database and creates the schema.
func OpenSQLStore(ctx context.Context, config Config, metrics *observability.Metrics) (*SQLStore, error) {
	switch config.Driver {
	case "sqlite3":
		if err := ensureSQLiteDir(config.DSN); err != nil {
			return nil, err
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", config.Driver)
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.Driver == "sqlite3" {
		// SQLite serialises writers, and each :memory: connection is its
		// own database.
		db.SetMaxOpenConns(1)
	} else if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := NewSQLStore(ctx, db, config.Driver, metrics)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database and creates the schema.
func NewSQLStore(ctx context.Context, db *sql.DB, driver string, metrics *observability.Metrics) (*SQLStore, error) {
	s := &SQLStore{db: db, driver: driver, metrics: metrics}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return s, nil
}

func ensureSQLiteDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

// DB returns the underlying database, for health checks.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Driver returns the database driver name.
func (s *SQLStore) Driver() string {
	return s.driver
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders for drivers that number them.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save inserts or replaces the record and its plugins.
func (s *SQLStore) Save(ctx context.Context, record *LibraryRecord) (err error) {
	defer func(start time.Time) { s.metrics.ObserveStorage("save", s.driver, start, err) }(time.Now())

	if record == nil || record.Path == "" {
		return fmt.Errorf("record path is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO libraries (`+libraryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			scan_id = excluded.scan_id,
			mod_time = excluded.mod_time,
			size = excluded.size,
			clap_major = excluded.clap_major,
			clap_minor = excluded.clap_minor,
			clap_revision = excluded.clap_revision,
			has_preset_discovery = excluded.has_preset_discovery,
			error = excluded.error,
			indexed_at = excluded.indexed_at`),
		record.Path,
		record.ScanID,
		record.ModTime.UnixNano(),
		record.Size,
		int64(record.Version.Major),
		int64(record.Version.Minor),
		int64(record.Version.Revision),
		record.HasPresetDiscovery,
		record.Error,
		record.IndexedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save library: %w", err)
	}

	if _, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM plugins WHERE library_path = ?`), record.Path); err != nil {
		return fmt.Errorf("failed to clear plugins: %w", err)
	}

	for i, plugin := range record.Plugins {
		data, mErr := json.Marshal(plugin)
		if mErr != nil {
			err = fmt.Errorf("failed to marshal plugin %q: %w", plugin.ID, mErr)
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO plugins (library_path, position, plugin_id, metadata)
			VALUES (?, ?, ?, ?)`),
			record.Path, i, plugin.ID, string(data),
		)
		if err != nil {
			return fmt.Errorf("failed to save plugin %q: %w", plugin.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get returns the record for path, or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, path string) (record *LibraryRecord, err error) {
	defer func(start time.Time) { s.metrics.ObserveStorage("get", s.driver, start, err) }(time.Now())

	records, err := s.query(ctx, `WHERE path = ?`, path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return records[0], nil
}

// List returns every record ordered by path.
func (s *SQLStore) List(ctx context.Context) (records []*LibraryRecord, err error) {
	defer func(start time.Time) { s.metrics.ObserveStorage("list", s.driver, start, err) }(time.Now())
	return s.query(ctx, ``)
}

// FindPlugin returns the libraries providing pluginID, ordered by path.
func (s *SQLStore) FindPlugin(ctx context.Context, pluginID string) (records []*LibraryRecord, err error) {
	defer func(start time.Time) { s.metrics.ObserveStorage("find_plugin", s.driver, start, err) }(time.Now())
	return s.query(ctx, `WHERE path IN (SELECT library_path FROM plugins WHERE plugin_id = ?)`, pluginID)
}

// Delete removes the record for path. Deleting a missing record is not an
// error.
func (s *SQLStore) Delete(ctx context.Context, path string) (err error) {
	defer func(start time.Time) { s.metrics.ObserveStorage("delete", s.driver, start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM plugins WHERE library_path = ?`), path); err != nil {
		return fmt.Errorf("failed to delete plugins: %w", err)
	}
	if _, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM libraries WHERE path = ?`), path); err != nil {
		return fmt.Errorf("failed to delete library: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) query(ctx context.Context, where string, args ...any) ([]*LibraryRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+libraryColumns+` FROM libraries `+where+` ORDER BY path`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query libraries: %w", err)
	}
	defer rows.Close()

	var (
		records []*LibraryRecord
		byPath  = make(map[string]*LibraryRecord)
	)
	for rows.Next() {
		var (
			r                      LibraryRecord
			modTime, indexedAt     int64
			major, minor, revision int64
		)
		if err := rows.Scan(
			&r.Path, &r.ScanID, &modTime, &r.Size,
			&major, &minor, &revision,
			&r.HasPresetDiscovery, &r.Error, &indexedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan library: %w", err)
		}
		r.ModTime = time.Unix(0, modTime).UTC()
		r.IndexedAt = time.Unix(0, indexedAt).UTC()
		r.Version = clap.Version{Major: uint32(major), Minor: uint32(minor), Revision: uint32(revision)}
		r.Plugins = []clap.PluginMetadata{}
		records = append(records, &r)
		byPath[r.Path] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read libraries: %w", err)
	}
	if len(records) == 0 {
		return records, nil
	}

	if err := s.loadPlugins(ctx, where, args, byPath); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SQLStore) loadPlugins(ctx context.Context, where string, args []any, byPath map[string]*LibraryRecord) error {
	pluginWhere := ``
	if where != `` {
		pluginWhere = `WHERE library_path IN (SELECT path FROM libraries ` + where + `)`
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT library_path, metadata FROM plugins `+pluginWhere+`
		ORDER BY library_path, position`), args...)
	if err != nil {
		return fmt.Errorf("failed to query plugins: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, data string
		if err := rows.Scan(&path, &data); err != nil {
			return fmt.Errorf("failed to scan plugin: %w", err)
		}
		record, ok := byPath[path]
		if !ok {
			continue
		}
		var plugin clap.PluginMetadata
		if err := json.Unmarshal([]byte(data), &plugin); err != nil {
			return fmt.Errorf("failed to unmarshal plugin of %s: %w", path, err)
		}
		record.Plugins = append(record.Plugins, plugin)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read plugins: %w", err)
	}
	return nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
