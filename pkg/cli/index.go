package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/claphost/pkg/clap"
	"github.com/platinummonkey/claphost/pkg/discovery"
	"github.com/platinummonkey/claphost/pkg/index"
	"github.com/platinummonkey/claphost/pkg/observability"
	"github.com/platinummonkey/claphost/pkg/storage"
	"github.com/platinummonkey/claphost/pkg/storage/cache"
)

// indexDeps is everything an index-backed command needs. close releases it
// in reverse order of creation.
type indexDeps struct {
	store   *storage.SQLStore
	cache   cache.Cache
	indexer *index.Indexer
}

func (d *indexDeps) close() error {
	var errs []error
	if d.cache != nil {
		errs = append(errs, d.cache.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// openIndex opens the configured store and cache and builds an indexer over
// them. metrics and tp may be nil.
func (a *app) openIndex(ctx context.Context, metrics *observability.Metrics, tp trace.TracerProvider) (*indexDeps, error) {
	storeCfg := storage.DefaultConfig()
	storeCfg.Driver = a.cfg.Index.Driver
	storeCfg.DSN = a.cfg.Index.DSN

	store, err := storage.OpenSQLStore(ctx, storeCfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	deps := &indexDeps{store: store}

	c, err := cache.New(&cache.Config{
		Backend:  a.cfg.Index.Cache.Backend,
		Size:     a.cfg.Index.Cache.Size,
		TTL:      a.cfg.Index.Cache.TTL,
		RedisURL: a.cfg.Index.Cache.RedisURL,
	}, metrics)
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	deps.cache = c

	libOpts := []clap.Option{clap.WithLogger(a.logger)}
	opts := []index.Option{
		index.WithLogger(a.logger),
		index.WithConcurrency(a.cfg.Plugins.Concurrency),
	}
	if c != nil {
		opts = append(opts, index.WithCache(c))
	}
	if metrics != nil {
		libOpts = append(libOpts, clap.WithMetrics(metrics))
		opts = append(opts, index.WithMetrics(metrics))
	}
	if tp != nil {
		libOpts = append(libOpts, clap.WithTracerProvider(tp))
		opts = append(opts, index.WithTracerProvider(tp))
	}
	opts = append(opts, index.WithLibraryOptions(libOpts...))

	deps.indexer = index.New(store, opts...)
	return deps, nil
}

func newIndexCommand(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the search paths and update the plugin index",
		Long: `Scan every search path, load each library found and record its plugins in
the index database. With --watch the command keeps running and applies
filesystem changes as they happen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			deps, err := a.openIndex(ctx, nil, nil)
			if err != nil {
				return err
			}
			defer deps.close()

			roots := a.searchRoots()
			result, err := deps.indexer.Sync(ctx, roots...)
			if result == nil {
				return fmt.Errorf("index run failed: %w", err)
			}
			if err != nil {
				a.logger.WithError(err).Warn("Index run completed with errors")
			}

			ok, err := writeStructured(cmd.OutOrStdout(), format, result)
			if !ok {
				err = writeResult(cmd, result)
			}
			if err != nil {
				return err
			}

			if !watch && !a.cfg.Plugins.Watch {
				return nil
			}
			return a.watch(ctx, deps.indexer, roots)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and index filesystem changes")
	addFormatFlag(cmd)
	return cmd
}

func writeResult(cmd *cobra.Command, r *index.Result) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", titleStyle.Render("Scan"), dimStyle.Render(r.ScanID))
	return writeTable(out, []string{"DISCOVERED", "INDEXED", "FAILED", "CACHE HITS", "REMOVED", "DURATION"}, [][]string{{
		strconv.Itoa(r.Discovered),
		strconv.Itoa(r.Indexed),
		strconv.Itoa(r.Failed),
		strconv.Itoa(r.CacheHits),
		strconv.Itoa(r.Removed),
		r.Duration.Round(time.Millisecond).String(),
	}})
}

// watch applies filesystem changes under roots to the index until ctx is
// done.
func (a *app) watch(ctx context.Context, ix *index.Indexer, roots []string) error {
	w, err := discovery.NewWatcher(ctx, a.logger, discovery.DefaultDebounce, roots...)
	if err != nil {
		return err
	}
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-w.Changes():
			if !ok {
				return nil
			}
			log := a.logger.WithField("path", change.Path).WithField("change", change.Kind.String())
			if err := ix.HandleChange(ctx, change); err != nil {
				log.WithError(err).Error("Failed to apply change to index")
				continue
			}
			log.Info("Applied change to index")
		}
	}
}

func newFindCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <plugin-id>",
		Short: "Find the indexed libraries that provide a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			deps, err := a.openIndex(cmd.Context(), nil, nil)
			if err != nil {
				return err
			}
			defer deps.close()

			records, err := deps.store.FindPlugin(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to query index: %w", err)
			}
			if records == nil {
				records = []*storage.LibraryRecord{}
			}
			if ok, err := writeStructured(cmd.OutOrStdout(), format, records); ok {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No indexed library provides "+args[0]))
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{r.Path, r.Version.String(), r.IndexedAt.Format(time.RFC3339)})
			}
			return writeTable(cmd.OutOrStdout(), []string{"LIBRARY", "CLAP", "INDEXED"}, rows)
		},
	}
	addFormatFlag(cmd)
	return cmd
}
