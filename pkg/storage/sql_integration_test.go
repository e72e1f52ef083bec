//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresStore starts a PostgreSQL container and opens a store on it.
func setupPostgresStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("claphost_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := OpenSQLStore(ctx, Config{Driver: "postgres", DSN: dsn, MaxOpenConns: 4, Timeout: 10 * time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStore_Postgres(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	a := testRecord("/lib/a.clap", "com.example.synth", "com.example.fx")
	a.HasPresetDiscovery = true
	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, testRecord("/lib/b.clap", "com.example.synth")))

	failed := testRecord("/lib/broken.clap")
	failed.Error = "missing clap_entry"
	require.NoError(t, store.Save(ctx, failed))

	got, err := store.Get(ctx, "/lib/a.clap")
	require.NoError(t, err)
	assert.Equal(t, a.Plugins, got.Plugins)
	assert.True(t, got.HasPresetDiscovery)
	assert.True(t, a.ModTime.Equal(got.ModTime))

	found, err := store.FindPlugin(ctx, "com.example.synth")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "/lib/a.clap", found[0].Path)
	assert.Equal(t, "/lib/b.clap", found[1].Path)

	// Upsert replaces the plugin list.
	replaced := testRecord("/lib/a.clap", "com.example.other")
	require.NoError(t, store.Save(ctx, replaced))
	found, err = store.FindPlugin(ctx, "com.example.fx")
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, store.Delete(ctx, "/lib/b.clap"))
	_, err = store.Get(ctx, "/lib/b.clap")
	assert.True(t, IsNotFound(err))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Failed() || all[1].Failed())
}
