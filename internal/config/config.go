// Package config loads and validates the server configuration: a YAML file
// merged over built-in defaults, with TRIBUTARY_* environment overrides on
// top. Command-line flags are applied last by the CLI layer.
package config

import (
	"strings"
	"time"

	"github.com/tributarydb/tributary/internal/schemafile"
	"github.com/tributarydb/tributary/internal/storage"
)

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	// Port is the port the API server listens on.
	Port int `yaml:"port"`
}

// EventsConfig tunes the change-event pipeline.
type EventsConfig struct {
	// QueueSize bounds the in-memory event queue.
	QueueSize int `yaml:"queue_size"`

	// BatchSize is the sink flush threshold.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval flushes partial batches.
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoggingConfig holds the default log level; per-package overrides come from
// flags and LOG_LEVEL_* environment variables.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TracingConfig holds the OpenTelemetry export settings.
type TracingConfig struct {
	// Enabled turns on trace export.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC endpoint traces are exported to.
	Endpoint string `yaml:"endpoint"`

	// TLSCAPath points at a CA certificate for endpoint verification.
	// Empty with Enabled uses an insecure connection unless TLSInsecure
	// is explicitly false.
	TLSCAPath string `yaml:"tls_ca_path"`

	// TLSInsecure skips endpoint verification.
	TLSInsecure bool `yaml:"tls_insecure"`
}

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig         `yaml:"server"`
	Storage storage.ClientConfig `yaml:"storage"`
	Schema  schemafile.Config    `yaml:"schema"`
	Events  EventsConfig         `yaml:"events"`
	Logging LoggingConfig        `yaml:"logging"`
	Tracing TracingConfig        `yaml:"tracing"`
}

// DefaultConfig returns the configuration used when no file is given:
// a local FalkorDB, schemas read from ./schemas, and logging at info.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: storage.DefaultClientConfig(),
		Schema: schemafile.Config{
			Dir:            "schemas",
			Watch:          false,
			DebounceMillis: 500,
		},
		Events: EventsConfig{
			QueueSize:     1000,
			BatchSize:     100,
			FlushInterval: time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return NewConfigError("server.port must be between 1 and 65535")
	}

	if c.Storage.Host == "" {
		return NewConfigError("storage.host must not be empty")
	}
	if c.Storage.Port < 1 || c.Storage.Port > 65535 {
		return NewConfigError("storage.port must be between 1 and 65535")
	}
	if c.Storage.GraphName == "" {
		return NewConfigError("storage.graph_name must not be empty")
	}
	if c.Storage.QueryCacheEnabled && c.Storage.QueryCacheMaxMemoryMB < 1 {
		return NewConfigError("storage.query_cache_max_memory_mb must be at least 1 when the cache is enabled")
	}

	if c.Schema.Dir == "" {
		return NewConfigError("schema.dir must not be empty")
	}
	if c.Schema.DebounceMillis < 0 {
		return NewConfigError("schema.debounce_millis must not be negative")
	}

	if c.Events.QueueSize < 1 {
		return NewConfigError("events.queue_size must be at least 1")
	}
	if c.Events.BatchSize < 1 {
		return NewConfigError("events.batch_size must be at least 1")
	}
	if c.Events.FlushInterval <= 0 {
		return NewConfigError("events.flush_interval must be positive")
	}

	if !isValidLogLevel(c.Logging.Level) {
		return NewConfigError("logging.level must be one of debug, info, warn, error, fatal")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error", "fatal":
		return true
	default:
		return false
	}
}

// ConfigError represents a configuration error.
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return e.message
}
