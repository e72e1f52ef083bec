package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/claphost/pkg/api"
	"github.com/platinummonkey/claphost/pkg/async"
	"github.com/platinummonkey/claphost/pkg/index"
	"github.com/platinummonkey/claphost/pkg/observability"
	"github.com/platinummonkey/claphost/pkg/storage/cache"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the index HTTP API",
		Long: `Serve the plugin index over HTTP. The index is refreshed on start, on the
configured rescan schedule and, with plugins.watch enabled, whenever a
search path changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), cmd)
		},
	}
	flags := cmd.Flags()
	flags.String("host", "", "address to listen on")
	flags.String("port", "", "port to listen on")
	flags.Bool("watch", false, "index filesystem changes as they happen")
	a.v.BindPFlag("server.host", flags.Lookup("host"))
	a.v.BindPFlag("server.port", flags.Lookup("port"))
	a.v.BindPFlag("plugins.watch", flags.Lookup("watch"))
	return cmd
}

// newRegistry returns a registry with the standard process and Go collectors.
func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

func (a *app) serve(parent context.Context, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
		tp       trace.TracerProvider
	)
	if a.cfg.Observability.MetricsEnabled {
		registry = newRegistry()
		metrics = observability.NewMetrics(registry)
	}

	otelCfg := a.cfg.Observability.OTel
	if otelCfg.ServiceVersion == "" {
		otelCfg.ServiceVersion = a.info.Version
	}
	providers, err := observability.InitOTel(ctx, otelCfg, a.logger)
	if err != nil {
		return err
	}
	if providers != nil {
		tp = providers.TracerProvider
	}

	deps, err := a.openIndex(ctx, metrics, tp)
	if err != nil {
		observability.ShutdownOTel(context.Background(), providers, a.logger)
		return err
	}

	var redisClient *redis.Client
	if rc, ok := deps.cache.(*cache.RedisCache); ok {
		redisClient = rc.Client()
	}
	health := observability.NewHealthChecker(deps.store.DB(), redisClient, a.info.Version).
		WithIndexFreshness(deps.indexer.LastRun, a.cfg.Index.StaleAfter)

	// Background work stops before the store is closed.
	tasks := async.NewGroup(ctx, a.logger)
	handler := api.NewHandler(api.HandlerConfig{
		Store:    deps.store,
		Indexer:  deps.indexer,
		Roots:    a.searchRoots,
		Logger:   a.logger,
		Metrics:  metrics,
		Registry: registry,
		Health:   health,
		Tasks:    tasks,
	})

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}
	ln, err := net.Listen("tcp", a.cfg.Server.Addr())
	if err != nil {
		deps.close()
		observability.ShutdownOTel(context.Background(), providers, a.logger)
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Server.Addr(), err)
	}

	roots := a.searchRoots()
	tasks.Go("initial index", 0, func(ctx context.Context) error {
		a.runSync(ctx, deps.indexer, roots, "Initial index completed")
		return nil
	})

	scheduler := cron.New()
	if schedule := a.cfg.Index.RescanSchedule; schedule != "" {
		_, err = scheduler.AddFunc(schedule, func() {
			tasks.Go("scheduled rescan", 0, func(ctx context.Context) error {
				a.runSync(ctx, deps.indexer, a.searchRoots(), "Scheduled rescan completed")
				return nil
			})
		})
		if err != nil {
			tasks.Shutdown(context.Background())
			ln.Close()
			deps.close()
			observability.ShutdownOTel(context.Background(), providers, a.logger)
			return fmt.Errorf("failed to schedule rescan: %w", err)
		}
	}
	scheduler.Start()

	if a.cfg.Plugins.Watch {
		tasks.Go("index watcher", 0, func(ctx context.Context) error {
			return a.watch(ctx, deps.indexer, roots)
		})
	}

	sm := observability.NewShutdownManager(a.logger, srv, a.cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, a.logger)
	})
	// Running rescans finish before the store closes.
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		<-scheduler.Stop().Done()
		if err := tasks.Shutdown(ctx); err != nil {
			return err
		}
		return deps.close()
	})

	serveErr := make(chan error, 1)
	go func() {
		defer observability.RecoverPanic(a.logger, "http server")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("server failed: %w", err)
			cancel()
		}
	}()

	a.logger.WithField("addr", ln.Addr().String()).
		WithField("schedule", a.cfg.Index.RescanSchedule).
		Info("Serving plugin index")
	fmt.Fprintf(cmd.OutOrStdout(), "%s http://%s\n", okStyle.Render("Listening on"), ln.Addr())

	shutdownErr := sm.WaitForShutdown(ctx)
	select {
	case err := <-serveErr:
		return errors.Join(err, shutdownErr)
	default:
		return shutdownErr
	}
}

func (a *app) runSync(ctx context.Context, ix *index.Indexer, roots []string, msg string) {
	result, err := ix.Sync(ctx, roots...)
	if result == nil {
		if ctx.Err() == nil {
			a.logger.WithError(err).Error("Index run failed")
		}
		return
	}
	log := a.logger.WithField("scan_id", result.ScanID).
		WithField("indexed", result.Indexed).
		WithField("failed", result.Failed).
		WithField("removed", result.Removed)
	if err != nil {
		log.WithError(err).Warn(msg + " with errors")
		return
	}
	log.Info(msg)
}
