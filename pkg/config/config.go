package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/platinummonkey/claphost/pkg/observability"
)

// EnvPrefix prefixes every environment variable, e.g. CLAPHOST_INDEX_DRIVER.
const EnvPrefix = "CLAPHOST"

// Config holds all application configuration
type Config struct {
	Plugins       PluginsConfig       `mapstructure:"plugins"`
	Index         IndexConfig         `mapstructure:"index"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// PluginsConfig controls where plugin libraries are looked for.
type PluginsConfig struct {
	// SearchPaths replaces the platform's standard CLAP locations when set.
	SearchPaths []string `mapstructure:"search_paths"`
	// ExtraPaths are searched in addition to SearchPaths.
	ExtraPaths  []string `mapstructure:"extra_paths"`
	Watch       bool     `mapstructure:"watch"`
	Concurrency int      `mapstructure:"concurrency"`
}

// IndexConfig configures the metadata index.
type IndexConfig struct {
	Driver         string        `mapstructure:"driver"` // sqlite3 or postgres
	DSN            string        `mapstructure:"dsn"`
	RescanSchedule string        `mapstructure:"rescan_schedule"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	Cache          CacheConfig   `mapstructure:"cache"`
}

// CacheConfig configures the metadata cache in front of plugin loading.
type CacheConfig struct {
	Backend  string        `mapstructure:"backend"` // memory, redis or none
	Size     int           `mapstructure:"size"`
	TTL      time.Duration `mapstructure:"ttl"`
	RedisURL string        `mapstructure:"redis_url"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Log            observability.LogConfig  `mapstructure:"log"`
	MetricsEnabled bool                     `mapstructure:"metrics_enabled"`
	OTel           observability.OTelConfig `mapstructure:"otel"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("plugins.search_paths", []string{})
	v.SetDefault("plugins.extra_paths", []string{})
	v.SetDefault("plugins.watch", false)
	v.SetDefault("plugins.concurrency", 4)

	v.SetDefault("index.driver", "sqlite3")
	v.SetDefault("index.dsn", defaultIndexDSN())
	v.SetDefault("index.rescan_schedule", "@every 1h")
	v.SetDefault("index.stale_after", 2*time.Hour)
	v.SetDefault("index.cache.backend", "memory")
	v.SetDefault("index.cache.size", 1024)
	v.SetDefault("index.cache.ttl", 24*time.Hour)
	v.SetDefault("index.cache.redis_url", "")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("observability.log.level", "info")
	v.SetDefault("observability.log.format", "text")
	v.SetDefault("observability.log.file", "")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.otel.enabled", false)
	v.SetDefault("observability.otel.endpoint", "localhost:4317")
	v.SetDefault("observability.otel.service_name", "claphost")
	v.SetDefault("observability.otel.service_version", "")
	v.SetDefault("observability.otel.insecure", true)
	v.SetDefault("observability.otel.sample_ratio", 1.0)
}

func defaultIndexDSN() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "claphost", "index.db")
}

// LoadConfig reads configuration from defaults, the optional config file and
// CLAPHOST_* environment variables, in increasing order of precedence.
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "claphost"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Plugins.Concurrency < 1 {
		return fmt.Errorf("plugins concurrency must be at least 1")
	}

	switch c.Index.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("invalid index driver: %s (must be sqlite3 or postgres)", c.Index.Driver)
	}
	if c.Index.DSN == "" {
		return fmt.Errorf("index DSN is required")
	}
	if c.Index.RescanSchedule != "" {
		if _, err := cron.ParseStandard(c.Index.RescanSchedule); err != nil {
			return fmt.Errorf("invalid rescan schedule %q: %w", c.Index.RescanSchedule, err)
		}
	}

	switch c.Index.Cache.Backend {
	case "none":
	case "memory":
		if c.Index.Cache.Size < 1 {
			return fmt.Errorf("memory cache size must be at least 1")
		}
	case "redis":
		if c.Index.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory, redis or none)", c.Index.Cache.Backend)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Observability.OTel.Enabled && c.Observability.OTel.Endpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}
	if r := c.Observability.OTel.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %v", r)
	}

	return nil
}
