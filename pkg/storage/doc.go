// Package storage persists the plugin index.
//
// # Overview
//
// Every scanned plugin library becomes one LibraryRecord: where the file is,
// the size and modification time it had when scanned, the CLAP version it was
// built against and the descriptors of the plugins its factory exposes. A
// library that failed to load is recorded too, with Error set, so a broken
// file is not retried until it changes.
//
// # Architecture
//
// The storage layer uses interface segregation:
//
//   - LibraryReader: Get, List, FindPlugin
//   - LibraryWriter: Save, Delete
//
// These compose into Store.
//
// # Backend Implementations
//
// SQLStore keeps records in SQLite (the default, a single file under the
// user cache directory) or PostgreSQL for a shared index. The schema is
// created on open. Queries are written with ? placeholders and rebound for
// PostgreSQL.
//
//	store, err := storage.OpenSQLStore(ctx, storage.Config{
//		Driver: "postgres",
//		DSN:    "postgres://localhost/claphost?sslmode=disable",
//	}, metrics)
//
// Plugin descriptors are stored as JSON, one row per plugin, keyed by the
// library path and the plugin's position in the factory, so FindPlugin can
// use an index on the plugin ID.
//
// # Caching
//
// Package storage/cache holds the metadata cache that sits in front of
// plugin loading.
//
// # Related Packages
//
//   - pkg/index: Builds records and writes them here
//   - pkg/api: Serves records over HTTP
package storage
