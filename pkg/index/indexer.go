package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/claphost/pkg/clap"
	"github.com/platinummonkey/claphost/pkg/discovery"
	"github.com/platinummonkey/claphost/pkg/observability"
	"github.com/platinummonkey/claphost/pkg/storage"
	"github.com/platinummonkey/claphost/pkg/storage/cache"
)

const tracerName = "github.com/platinummonkey/claphost/pkg/index"

// Describer loads the library at path and reports what it contains.
type Describer func(ctx context.Context, path string) (*cache.Entry, error)

// Result summarises one index run.
type Result struct {
	ScanID     string        `json:"scan_id" yaml:"scan_id"`
	Discovered int           `json:"discovered" yaml:"discovered"`
	Indexed    int           `json:"indexed" yaml:"indexed"`
	Failed     int           `json:"failed" yaml:"failed"`
	CacheHits  int           `json:"cache_hits" yaml:"cache_hits"`
	Removed    int           `json:"removed" yaml:"removed"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Indexer records the plugin libraries found on disk in a Store.
type Indexer struct {
	store       storage.Store
	cache       cache.Cache
	scanner     *discovery.Scanner
	describe    Describer
	logger      logrus.FieldLogger
	metrics     *observability.Metrics
	tracer      trace.Tracer
	concurrency int
	libOpts     []clap.Option

	mu      sync.Mutex // serialises runs
	lastRun atomic.Int64
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithCache puts c in front of library loading. A nil cache disables caching.
func WithCache(c cache.Cache) Option {
	return func(ix *Indexer) { ix.cache = c }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// WithMetrics records index runs in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(ix *Indexer) { ix.metrics = m }
}

// WithConcurrency bounds how many libraries are loaded at once.
func WithConcurrency(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

// WithDescriber replaces the function that loads and describes a library.
func WithDescriber(d Describer) Option {
	return func(ix *Indexer) {
		if d != nil {
			ix.describe = d
		}
	}
}

// WithLibraryOptions passes options to clap.Load for every library.
func WithLibraryOptions(opts ...clap.Option) Option {
	return func(ix *Indexer) { ix.libOpts = append(ix.libOpts, opts...) }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(ix *Indexer) {
		if tp != nil {
			ix.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates an Indexer writing to store.
func New(store storage.Store, opts ...Option) *Indexer {
	ix := &Indexer{
		store:       store,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		ix.logger = l
	}
	if ix.tracer == nil {
		ix.tracer = otel.Tracer(tracerName)
	}
	if ix.describe == nil {
		ix.describe = ix.describeLibrary
	}
	ix.scanner = discovery.NewScanner(ix.concurrency, ix.logger)
	return ix
}

// LastRun returns when the last successful run finished, or the zero time.
func (ix *Indexer) LastRun() time.Time {
	n := ix.lastRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Sync scans roots, indexes every library found and removes records for
// libraries that no longer exist.
func (ix *Indexer) Sync(ctx context.Context, roots ...string) (*Result, error) {
	ctx, span := ix.tracer.Start(ctx, "index.Sync", trace.WithAttributes(attribute.Int("index.roots", len(roots))))
	defer span.End()

	paths, scanErr := ix.scanner.Scan(ctx, roots...)
	if ix.metrics != nil {
		ix.metrics.DiscoveredLibraries.Set(float64(len(paths)))
	}
	if scanErr != nil {
		ix.logger.WithError(scanErr).Warn("Some search paths could not be scanned")
		if ctx.Err() != nil {
			return nil, scanErr
		}
	}

	result, err := ix.Index(ctx, paths)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, errors.Join(scanErr, err)
	}

	removed, err := ix.prune(ctx, paths)
	result.Removed = removed
	ix.updateGauges(ctx)
	if err != nil {
		span.RecordError(err)
		return result, errors.Join(scanErr, err)
	}
	return result, scanErr
}

// Index records each library in paths. A library that fails to load is
// stored with its error and does not stop the run. The returned error only
// reports storage failures and cancellation.
func (ix *Indexer) Index(ctx context.Context, paths []string) (result *Result, err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := time.Now()
	result = &Result{ScanID: uuid.New().String(), Discovered: len(paths)}

	ctx, span := ix.tracer.Start(ctx, "index.Index", trace.WithAttributes(
		attribute.String("index.scan_id", result.ScanID),
		attribute.Int("index.libraries", len(paths)),
	))
	defer span.End()

	log := observability.WithTraceContext(ctx, ix.logger).WithField("scan_id", result.ScanID)
	log.WithField("libraries", len(paths)).Info("Indexing plugin libraries")

	defer func() {
		result.Duration = time.Since(start)
		if ix.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			ix.metrics.IndexRunsTotal.WithLabelValues(status).Inc()
			ix.metrics.IndexRunDuration.Observe(result.Duration.Seconds())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		ix.lastRun.Store(time.Now().UnixNano())
		log.WithFields(logrus.Fields{
			"indexed":    result.Indexed,
			"failed":     result.Failed,
			"cache_hits": result.CacheHits,
			"duration":   result.Duration.String(),
		}).Info("Indexed plugin libraries")
	}()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(ix.concurrency)

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, path := range paths {
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return egCtx.Err()
			}
			record, hit, err := ix.indexOne(egCtx, result.ScanID, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			result.Indexed++
			if record.Failed() {
				result.Failed++
			}
			if hit {
				result.CacheHits++
			}
			return nil
		})
	}
	if waitErr := eg.Wait(); waitErr != nil {
		errs = append(errs, waitErr)
	}
	return result, errors.Join(errs...)
}

// indexOne builds and saves the record for one library. Only failures to
// stat or save are returned; load failures end up in the record.
func (ix *Indexer) indexOne(ctx context.Context, scanID, path string) (*storage.LibraryRecord, bool, error) {
	key, err := cache.KeyFor(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}

	entry, hit := ix.cached(ctx, key)
	if !hit {
		entry, err = ix.describe(ctx, path)
		if err != nil {
			ix.logger.WithError(err).WithFields(logrus.Fields{
				"path": path,
				"kind": clap.ErrorKind(err),
			}).Warn("Failed to index plugin library")
			entry = &cache.Entry{Plugins: []clap.PluginMetadata{}, Error: err.Error()}
		}
		if ix.cache != nil {
			if err := ix.cache.Set(ctx, key, entry); err != nil {
				ix.logger.WithError(err).WithField("path", path).Warn("Failed to cache plugin metadata")
			}
		}
	}

	record := &storage.LibraryRecord{
		ScanID:             scanID,
		Path:               path,
		ModTime:            key.ModTime,
		Size:               key.Size,
		Version:            entry.Version,
		Plugins:            entry.Plugins,
		HasPresetDiscovery: entry.HasPresetDiscovery,
		Error:              entry.Error,
		IndexedAt:          time.Now().UTC(),
	}
	if err := ix.store.Save(ctx, record); err != nil {
		return nil, hit, fmt.Errorf("save %s: %w", path, err)
	}
	return record, hit, nil
}

func (ix *Indexer) cached(ctx context.Context, key cache.Key) (*cache.Entry, bool) {
	if ix.cache == nil {
		return nil, false
	}
	entry, err := ix.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			ix.logger.WithError(err).WithField("path", key.Path).Warn("Metadata cache lookup failed")
		}
		return nil, false
	}
	return entry, true
}

// describeLibrary is the default Describer: it loads the library, reads its
// metadata, checks for preset discovery and unloads it again.
func (ix *Indexer) describeLibrary(ctx context.Context, path string) (*cache.Entry, error) {
	lib, err := clap.Load(ctx, path, ix.libOpts...)
	if err != nil {
		return nil, err
	}
	defer ix.logRelease(path, "library", lib.Close)

	md, err := lib.Metadata(ctx)
	if err != nil {
		return nil, err
	}

	presets, err := lib.PresetDiscoveryFactory()
	if err != nil {
		return nil, err
	}
	if presets != nil {
		ix.logRelease(path, "preset discovery factory", presets.Release)
	}

	return &cache.Entry{
		Version:            md.Version,
		Plugins:            md.Plugins,
		HasPresetDiscovery: presets != nil,
	}, nil
}

// logRelease runs a release function whose failure does not invalidate
// metadata that was already read, logging any error.
func (ix *Indexer) logRelease(path, what string, release func() error) {
	if err := release(); err != nil {
		ix.logger.WithError(err).WithFields(logrus.Fields{
			"path":   path,
			"object": what,
		}).Warn("Failed to release plugin library object")
	}
}

// Remove deletes the record for path.
func (ix *Indexer) Remove(ctx context.Context, path string) error {
	if err := ix.store.Delete(ctx, path); err != nil {
		return err
	}
	ix.updateGauges(ctx)
	return nil
}

// HandleChange applies one watcher notification to the index.
func (ix *Indexer) HandleChange(ctx context.Context, change discovery.Change) error {
	switch change.Kind {
	case discovery.ChangeRemoved:
		return ix.Remove(ctx, change.Path)
	default:
		_, err := ix.Index(ctx, []string{change.Path})
		ix.updateGauges(ctx)
		return err
	}
}

// prune deletes records for libraries that were not found and are gone from
// disk. Records for files outside the scanned roots are kept while the file
// exists.
func (ix *Indexer) prune(ctx context.Context, found []string) (int, error) {
	seen := make(map[string]struct{}, len(found))
	for _, p := range found {
		seen[p] = struct{}{}
	}

	records, err := ix.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}

	removed := 0
	var errs []error
	for _, r := range records {
		if _, ok := seen[r.Path]; ok {
			continue
		}
		if _, err := cache.KeyFor(r.Path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := ix.store.Delete(ctx, r.Path); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", r.Path, err))
			continue
		}
		removed++
	}
	if removed > 0 {
		ix.logger.WithField("removed", removed).Info("Removed vanished plugin libraries from the index")
	}
	return removed, errors.Join(errs...)
}

func (ix *Indexer) updateGauges(ctx context.Context) {
	if ix.metrics == nil {
		return
	}
	records, err := ix.store.List(ctx)
	if err != nil {
		return
	}
	plugins := 0
	for _, r := range records {
		plugins += len(r.Plugins)
	}
	ix.metrics.IndexedLibraries.Set(float64(len(records)))
	ix.metrics.IndexedPlugins.Set(float64(plugins))
}
