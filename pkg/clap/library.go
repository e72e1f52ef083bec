package clap

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/claphost/pkg/observability"
)

const tracerName = "github.com/platinummonkey/claphost/pkg/clap"

type libraryState int

const (
	stateUnloaded libraryState = iota
	stateInitialized
	stateDeinitialized
)

func (s libraryState) String() string {
	switch s {
	case stateUnloaded:
		return "unloaded"
	case stateInitialized:
		return "initialized"
	case stateDeinitialized:
		return "deinitialized"
	default:
		return "unknown"
	}
}

// Library is a loaded and initialized CLAP plugin library.
//
// A Library only exists after clap_plugin_entry.init returned true. Plugins
// and factory handles obtained from it hold a reference, and deinit followed
// by unloading the module happens once Close has been called and every such
// object has been released. A Library must not be used from several
// goroutines at once.
type Library struct {
	path    ResolvedPath
	module  Module
	state   libraryState
	refs    int
	closed  bool
	log     *logrus.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Option configures Load and LoadWith.
type Option func(*Library)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(log *logrus.Logger) Option {
	return func(l *Library) {
		if log != nil {
			l.log = log
		}
	}
}

// WithMetrics records lifecycle events in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Library) {
		l.metrics = m
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Library) {
		if tp != nil {
			l.tracer = tp.Tracer(tracerName)
		}
	}
}

// Load loads the CLAP plugin library at path using the platform loader.
func Load(ctx context.Context, path string, opts ...Option) (*Library, error) {
	return LoadWith(ctx, path, OpenModule, opts...)
}

// LoadWith is Load with a custom module opener.
func LoadWith(ctx context.Context, path string, open Opener, opts ...Option) (*Library, error) {
	l := &Library{state: stateUnloaded}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logrus.New()
		l.log.SetOutput(io.Discard)
	}
	if l.tracer == nil {
		l.tracer = otel.Tracer(tracerName)
	}

	_, span := l.tracer.Start(ctx, "clap.Load", trace.WithAttributes(attribute.String("clap.path", path)))
	defer span.End()

	start := time.Now()
	if err := l.load(path, open); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.log.WithError(err).WithField("path", path).Warn("Failed to load plugin library")
		if l.metrics != nil {
			l.metrics.LibraryLoadsTotal.WithLabelValues(ErrorKind(err)).Inc()
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("clap.version", l.Version().String()))
	l.log.WithFields(logrus.Fields{
		"path":    l.path.PluginPath,
		"version": l.Version().String(),
	}).Debug("Loaded plugin library")
	if l.metrics != nil {
		l.metrics.LibraryLoadsTotal.WithLabelValues("success").Inc()
		l.metrics.LibraryLoadDuration.Observe(time.Since(start).Seconds())
		l.metrics.LibrariesLoaded.Inc()
	}
	return l, nil
}

func (l *Library) load(path string, open Opener) error {
	resolved, err := ResolvePath(path)
	if err != nil {
		return err
	}
	cpath, err := cString(resolved.PluginPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPath, err)
	}

	module, err := open(resolved.LibraryPath)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrLoad, resolved.LibraryPath, err)
	}

	entry, err := resolveEntry(module)
	if err != nil {
		closeModule(module, l.log)
		return fmt.Errorf("%q: %w", resolved.LibraryPath, err)
	}
	if !entry.init(cpath) {
		closeModule(module, l.log)
		return fmt.Errorf("%w: 'clap_plugin_entry::init(%q)' returned false", ErrInitFailed, resolved.PluginPath)
	}

	l.path = resolved
	l.module = module
	l.state = stateInitialized
	l.refs = 1
	return nil
}

func closeModule(m Module, log *logrus.Logger) {
	if err := m.Close(); err != nil {
		log.WithError(err).Warn("Failed to unload plugin library")
	}
}

// Path returns the path that was passed to the library's init function.
func (l *Library) Path() string {
	return l.path.PluginPath
}

// LibraryPath returns the path of the shared library that was loaded. It
// differs from Path for macOS bundles.
func (l *Library) LibraryPath() string {
	return l.path.LibraryPath
}

// Version returns the CLAP version from the library's entry point, or the zero
// Version once the library has been deinitialized.
func (l *Library) Version() Version {
	if l.state != stateInitialized {
		return Version{}
	}
	entry, err := resolveEntry(l.module)
	if err != nil {
		return Version{}
	}
	return entry.version()
}

// Close releases the caller's ownership of the library. If plugins or factory
// handles created from it are still alive, deinit is deferred until the last
// of them is released. Close is idempotent.
func (l *Library) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if l.refs > 1 {
		l.log.WithFields(logrus.Fields{
			"path":       l.path.PluginPath,
			"dependents": l.refs - 1,
		}).Warn("Plugin library closed while plugin objects are still alive, deferring deinit")
	}
	return l.release()
}

func (l *Library) acquire() {
	l.refs++
}

// release drops one reference. The last release runs deinit and unloads the
// module.
func (l *Library) release() error {
	if l.refs <= 0 {
		return nil
	}
	l.refs--
	if l.refs > 0 || l.state != stateInitialized {
		return nil
	}

	if entry, err := resolveEntry(l.module); err == nil {
		entry.deinit()
	} else {
		l.log.WithError(err).Error("Entry point disappeared before deinit")
	}
	l.state = stateDeinitialized
	l.log.WithField("path", l.path.PluginPath).Debug("Deinitialized plugin library")
	if l.metrics != nil {
		l.metrics.LibrariesLoaded.Dec()
	}

	if err := l.module.Close(); err != nil {
		return fmt.Errorf("failed to unload %q: %w", l.path.LibraryPath, err)
	}
	return nil
}

// entry returns the validated entry point of an open library.
func (l *Library) entry() (entryPoint, error) {
	if l.closed || l.state != stateInitialized {
		return entryPoint{}, fmt.Errorf("%w: %q", ErrLibraryClosed, l.path.PluginPath)
	}
	return resolveEntry(l.module)
}
