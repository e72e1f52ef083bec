// Package observability provides logging, Prometheus metrics, OpenTelemetry
// tracing, health checks and graceful shutdown for claphost.
//
// # Logging
//
//	logger, closer, err := observability.NewLogger(observability.LogConfig{Level: "debug", Format: "json"})
//	defer closer.Close()
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	lib, err := clap.Load(ctx, path, clap.WithMetrics(metrics))
//
// Library loads, metadata extractions and plugin instantiations are counted by
// outcome, where the outcome is "success" or the error kind reported by
// clap.ErrorKind.
//
// # Tracing
//
// InitOTel installs global tracer and meter providers exporting over OTLP/gRPC.
// pkg/clap and pkg/index create spans through the global provider, and the
// HTTP API is wrapped with otelhttp.
//
// # Health Checks
//
//	GET /health/live   - process is running
//	GET /health/ready  - index database reachable, redis and index freshness degrade only
package observability
