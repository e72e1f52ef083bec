package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Plugin library metrics
	LibraryLoadsTotal        *prometheus.CounterVec
	LibraryLoadDuration      prometheus.Histogram
	LibrariesLoaded          prometheus.Gauge
	MetadataExtractionsTotal *prometheus.CounterVec
	PluginInstancesTotal     *prometheus.CounterVec
	PluginsLive              prometheus.Gauge

	// Index metrics
	IndexRunsTotal      *prometheus.CounterVec
	IndexRunDuration    prometheus.Histogram
	IndexedLibraries    prometheus.Gauge
	IndexedPlugins      prometheus.Gauge
	DiscoveredLibraries prometheus.Gauge

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claphost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claphost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claphost_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		LibraryLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claphost_library_loads_total",
				Help: "Total number of plugin library loads by outcome",
			},
			[]string{"status"},
		),
		LibraryLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "claphost_library_load_duration_seconds",
				Help:    "Time spent loading and initializing a plugin library",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		LibrariesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "claphost_libraries_loaded",
				Help: "Number of plugin libraries currently initialized",
			},
		),
		MetadataExtractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claphost_metadata_extractions_total",
				Help: "Total number of plugin metadata extractions by outcome",
			},
			[]string{"status"},
		),
		PluginInstancesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claphost_plugin_instances_total",
				Help: "Total number of plugin instantiations by outcome",
			},
			[]string{"status"},
		),
		PluginsLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "claphost_plugins_live",
				Help: "Number of plugin instances not yet destroyed",
			},
		),

		IndexRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claphost_index_runs_total",
				Help: "Total number of index runs",
			},
			[]string{"status"},
		),
		IndexRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "claphost_index_run_duration_seconds",
				Help:    "Index run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		IndexedLibraries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "claphost_indexed_libraries",
				Help: "Number of plugin libraries in the index",
			},
		),
		IndexedPlugins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "claphost_indexed_plugins",
				Help: "Number of plugins in the index",
			},
		),
		DiscoveredLibraries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "claphost_discovered_libraries",
				Help: "Number of .clap files found by the last scan",
			},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claphost_cache_hits_total",
				Help: "Total number of metadata cache hits",
			},
			[]string{"backend"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claphost_cache_misses_total",
				Help: "Total number of metadata cache misses",
			},
			[]string{"backend"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claphost_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "driver", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claphost_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "driver"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.LibraryLoadsTotal,
		m.LibraryLoadDuration,
		m.LibrariesLoaded,
		m.MetadataExtractionsTotal,
		m.PluginInstancesTotal,
		m.PluginsLive,
		m.IndexRunsTotal,
		m.IndexRunDuration,
		m.IndexedLibraries,
		m.IndexedPlugins,
		m.DiscoveredLibraries,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
	)

	return m
}

// ObserveStorage records one storage operation.
func (m *Metrics) ObserveStorage(operation, driver string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, driver, status).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, driver).Observe(time.Since(start).Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the route template so that path parameters do
// not create new series.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
