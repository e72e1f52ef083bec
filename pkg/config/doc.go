// Package config provides application configuration management backed by viper.
//
// # Overview
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then CLAPHOST_* environment variables. Nested keys map to environment
// variables by replacing dots with underscores.
//
// # Configuration Structure
//
// Plugin discovery:
//
//	CLAPHOST_PLUGINS_EXTRA_PATHS="/opt/clap"
//	CLAPHOST_PLUGINS_WATCH="true"
//	CLAPHOST_PLUGINS_CONCURRENCY="4"
//
// Index:
//
//	CLAPHOST_INDEX_DRIVER="sqlite3"          # sqlite3 or postgres
//	CLAPHOST_INDEX_DSN="/var/cache/claphost/index.db"
//	CLAPHOST_INDEX_RESCAN_SCHEDULE="@every 1h"
//	CLAPHOST_INDEX_CACHE_BACKEND="memory"   # memory, redis or none
//	CLAPHOST_INDEX_CACHE_REDIS_URL="redis://localhost:6379/0"
//
// Server:
//
//	CLAPHOST_SERVER_HOST="127.0.0.1"
//	CLAPHOST_SERVER_PORT="8080"
//
// Observability:
//
//	CLAPHOST_OBSERVABILITY_LOG_LEVEL="info"
//	CLAPHOST_OBSERVABILITY_LOG_FORMAT="json"
//	CLAPHOST_OBSERVABILITY_OTEL_ENABLED="true"
//	CLAPHOST_OBSERVABILITY_OTEL_ENDPOINT="localhost:4317"
//
// The same settings in a config file:
//
//	plugins:
//	  extra_paths: [/opt/clap]
//	index:
//	  driver: postgres
//	  dsn: postgres://localhost/claphost?sslmode=disable
//	  cache:
//	    backend: redis
//	    redis_url: redis://localhost:6379/0
//
// # Usage Example
//
//	cfg, err := config.LoadConfig(config.New(), "")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Addr())
//
// # Related Packages
//
//   - pkg/observability: Logging, metrics and tracing configuration types
//   - pkg/cli: Binds command-line flags onto the same viper instance
package config
