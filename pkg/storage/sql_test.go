package storage

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/claphost/pkg/clap"
	"github.com/platinummonkey/claphost/pkg/observability"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLStore(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(path string, pluginIDs ...string) *LibraryRecord {
	record := &LibraryRecord{
		ScanID:    "scan-1",
		Path:      path,
		ModTime:   time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC),
		Size:      4096,
		Version:   clap.Version{Major: 1, Minor: 2, Revision: 0},
		Plugins:   []clap.PluginMetadata{},
		IndexedAt: time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC),
	}
	for _, id := range pluginIDs {
		record.Plugins = append(record.Plugins, clap.PluginMetadata{
			ID:       id,
			Name:     id + " name",
			Version:  "1.0.0",
			Features: []string{"instrument", "stereo"},
		})
	}
	return record
}

func TestSQLStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("/lib/a.clap", "com.example.synth", "com.example.fx")
	record.HasPresetDiscovery = true
	require.NoError(t, store.Save(ctx, record))

	got, err := store.Get(ctx, "/lib/a.clap")
	require.NoError(t, err)
	assert.Equal(t, record.Path, got.Path)
	assert.Equal(t, record.ScanID, got.ScanID)
	assert.True(t, record.ModTime.Equal(got.ModTime))
	assert.True(t, record.IndexedAt.Equal(got.IndexedAt))
	assert.Equal(t, record.Size, got.Size)
	assert.Equal(t, record.Version, got.Version)
	assert.True(t, got.HasPresetDiscovery)
	assert.Equal(t, record.Plugins, got.Plugins)
	assert.False(t, got.Failed())
}

func TestSQLStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Save(ctx, testRecord("/lib/a.clap", "one", "two")))

	replaced := testRecord("/lib/a.clap", "three")
	replaced.ScanID = "scan-2"
	require.NoError(t, store.Save(ctx, replaced))

	got, err := store.Get(ctx, "/lib/a.clap")
	require.NoError(t, err)
	assert.Equal(t, "scan-2", got.ScanID)
	require.Len(t, got.Plugins, 1)
	assert.Equal(t, "three", got.Plugins[0].ID)
}

func TestSQLStore_FailedRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("/lib/broken.clap")
	record.Error = "init failed"
	require.NoError(t, store.Save(ctx, record))

	got, err := store.Get(ctx, "/lib/broken.clap")
	require.NoError(t, err)
	assert.True(t, got.Failed())
	assert.Empty(t, got.Plugins)
	assert.NotNil(t, got.Plugins)
}

func TestSQLStore_GetNotFound(t *testing.T) {
	_, err := newTestStore(t).Get(context.Background(), "/missing.clap")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestSQLStore_ListAndFindPlugin(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Save(ctx, testRecord("/lib/b.clap", "shared", "only-b")))
	require.NoError(t, store.Save(ctx, testRecord("/lib/a.clap", "shared")))
	require.NoError(t, store.Save(ctx, testRecord("/lib/c.clap")))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/lib/a.clap", all[0].Path)
	assert.Equal(t, "/lib/b.clap", all[1].Path)
	assert.Len(t, all[1].Plugins, 2)
	assert.Equal(t, "shared", all[1].Plugins[0].ID)
	assert.Equal(t, "only-b", all[1].Plugins[1].ID)

	shared, err := store.FindPlugin(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, shared, 2)
	assert.Equal(t, "/lib/a.clap", shared[0].Path)
	assert.Equal(t, "/lib/b.clap", shared[1].Path)
	// All of a library's plugins come back, not only the matching one.
	assert.Len(t, shared[1].Plugins, 2)

	none, err := store.FindPlugin(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Save(ctx, testRecord("/lib/a.clap", "x")))
	require.NoError(t, store.Delete(ctx, "/lib/a.clap"))
	require.NoError(t, store.Delete(ctx, "/lib/a.clap"))

	_, err := store.Get(ctx, "/lib/a.clap")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := store.FindPlugin(ctx, "x")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLStore_SaveRequiresPath(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Save(context.Background(), &LibraryRecord{}))
	assert.Error(t, store.Save(context.Background(), nil))
}

func TestSQLStore_FileDatabase(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "nested", "index.db")

	store, err := OpenSQLStore(ctx, Config{Driver: "sqlite3", DSN: dsn}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, testRecord("/lib/a.clap", "x")))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLStore(ctx, Config{Driver: "sqlite3", DSN: dsn}, nil)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(ctx, "/lib/a.clap")
	require.NoError(t, err)
	assert.Len(t, got.Plugins, 1)
}

func TestOpenSQLStore_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), Config{Driver: "mysql"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestSQLStore_Metrics(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store, err := OpenSQLStore(ctx, DefaultConfig(), metrics)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, testRecord("/lib/a.clap")))
	_, _ = store.Get(ctx, "/lib/missing.clap")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StorageOperationsTotal.WithLabelValues("save", "sqlite3", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StorageOperationsTotal.WithLabelValues("get", "sqlite3", "error")))
}

func TestSQLStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.MatchExpectationsInOrder(true)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	store, err := NewSQLStore(context.Background(), db, "postgres", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM plugins WHERE library_path = $1")).
		WithArgs("/lib/a.clap").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM libraries WHERE path = $1")).
		WithArgs("/lib/a.clap").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Delete(context.Background(), "/lib/a.clap"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SaveRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &SQLStore{db: db, driver: "postgres"}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO libraries").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = store.Save(context.Background(), testRecord("/lib/a.clap"))
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: "postgres"}
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", pg.rebind("a = ? AND b IN (?, ?)"))

	lite := &SQLStore{driver: "sqlite3"}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
