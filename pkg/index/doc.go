// Package index keeps a Store of plugin library records in step with what is
// on disk.
//
// An index run gives every library a record under a fresh scan ID. Loading a
// library means running its entry point, so results are cached by path, size
// and modification time and a library is only loaded again once it changes.
// Libraries that fail to load are recorded with their error.
//
//	ix := index.New(store, index.WithCache(c), index.WithMetrics(metrics))
//	result, err := ix.Sync(ctx, discovery.SearchPaths()...)
//
// HandleChange applies discovery.Watcher notifications between full runs.
package index
