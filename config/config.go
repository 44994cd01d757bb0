// Package config provides layered configuration loading for flowmill.
// Values are resolved from defaults, an optional YAML/JSON file,
// FLOWMILL_ environment variables and explicit overrides, in that order.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for a flowmill process.
type Config struct {
	App     AppConfig     `mapstructure:"app" validate:"required"`
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Log     LogConfig     `mapstructure:"log" validate:"required"`
	Engine  EngineConfig  `mapstructure:"engine" validate:"required"`
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig identifies the running application.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment" validate:"required,env"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host      string          `mapstructure:"host" validate:"required"`
	Port      int             `mapstructure:"port" validate:"required,min=1,max=65535"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// HTTPConfig holds HTTP server timeouts and limits.
type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"min=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"min=0"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes" validate:"min=0"`
}

// CORSConfig configures cross-origin request handling.
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age" validate:"min=0"`
}

// RateLimitConfig configures per-client API rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
	Output string `mapstructure:"output" validate:"required"`
}

// EngineConfig configures workflow execution behaviour.
type EngineConfig struct {
	BackoffBase          time.Duration `mapstructure:"backoff_base" validate:"min=0"`
	PollInterval         time.Duration `mapstructure:"poll_interval" validate:"min=0"`
	MaxRetainedWorkflows int           `mapstructure:"max_retained_workflows" validate:"min=1"`
}

// StorageConfig selects and configures the workflow state store.
type StorageConfig struct {
	Type   string       `mapstructure:"type" validate:"required,oneof=memory badger"`
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig configures the embedded Badger store.
type BadgerConfig struct {
	Path             string `mapstructure:"path"`
	SyncWrites       bool   `mapstructure:"sync_writes"`
	ValueLogFileSize int64  `mapstructure:"value_log_file_size" validate:"min=0"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
	Insecure   bool    `mapstructure:"insecure"`
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// ListenAddr returns the host:port the API server binds to.
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// String renders a short, human-readable summary of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf(
		"app=%s env=%s server=%s storage=%s log=%s/%s metrics=%t tracing=%t",
		c.App.Name, c.App.Environment, c.Server.ListenAddr(),
		c.Storage.Type, c.Log.Level, c.Log.Format,
		c.Metrics.Enabled, c.Tracing.Enabled,
	)
}
