// Package async runs tracked background tasks with panic recovery.
//
//	tasks := async.NewGroup(ctx, logger)
//	tasks.Go("initial index", 0, func(ctx context.Context) error {
//		_, err := indexer.Sync(ctx, roots...)
//		return err
//	})
//	defer tasks.Shutdown(shutdownCtx)
package async
