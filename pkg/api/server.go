package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/claphost/pkg/async"
	"github.com/platinummonkey/claphost/pkg/httputil"
	"github.com/platinummonkey/claphost/pkg/observability"
	"github.com/platinummonkey/claphost/pkg/storage"
)

// maxRequestBytes bounds request bodies; no endpoint takes a large one.
const maxRequestBytes = 1 << 20

// HandlerConfig collects what NewHandler wires together.
type HandlerConfig struct {
	Store   storage.LibraryReader
	Indexer Reindexer
	// Roots returns the search roots for a rescan.
	Roots    func() []string
	Logger   logrus.FieldLogger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Health   *observability.HealthChecker
	// Tasks runs background rescans so shutdown can wait for them.
	Tasks *async.Group
}

// NewHandler builds the full HTTP handler with the API, health and metrics
// routes behind the standard middleware, traced with otelhttp.
func NewHandler(cfg HandlerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	router := mux.NewRouter()
	router.Use(
		observability.RecoveryMiddleware(logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.MaxBytesMiddleware(maxRequestBytes),
	)
	if cfg.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}

	NewServer(cfg.Store, cfg.Indexer, cfg.Roots, cfg.Tasks, logger).RegisterRoutes(router)

	if cfg.Health != nil {
		observability.RegisterHealthRoutes(router, cfg.Health)
	}
	if cfg.Registry != nil {
		observability.RegisterMetricsEndpoint(router, cfg.Registry)
	}

	return otelhttp.NewHandler(router, "claphost",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
