// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Logging   LoggingConfig
	Transform TransformConfig
	Server    ServerConfig
	Database  DatabaseConfig
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// TransformConfig holds defaults for data preparation runs.
type TransformConfig struct {
	// Strict makes unmapped values fail the run instead of passing
	// through with a warning (default: false)
	Strict bool `env:"QUALPREP_STRICT" default:"false"`

	// DropQualtricsMeta removes the question-text and ImportId rows
	// Qualtrics places under the header row (default: true)
	DropQualtricsMeta bool `env:"QUALPREP_DROP_QUALTRICS_META" default:"true"`

	// Delimiter is the CSV field separator, a single character (default: ",")
	Delimiter string `env:"QUALPREP_DELIMITER" default:","`

	// MaxFileSize is the maximum allowed input size in bytes (default: 100MB)
	MaxFileSize int64 `env:"QUALPREP_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel transform
	// requests in serve mode (default: 4)
	MaxConcurrent int `env:"QUALPREP_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a request waits for a transform slot (default: 30s)
	MaxWaitTime time.Duration `env:"QUALPREP_MAX_WAIT_TIME" default:"30s"`

	// ResultTTL is how long serve mode keeps finished results available
	// for download (default: 1h)
	ResultTTL time.Duration `env:"QUALPREP_RESULT_TTL" default:"1h"`
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 120s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"120s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 120s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"120s"`
}

// DatabaseConfig holds settings for the optional PostgreSQL output.
// The database sink is only active when URL is set.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// DelimiterRune returns the configured CSV field separator as a rune.
func (c *TransformConfig) DelimiterRune() rune {
	for _, r := range c.Delimiter {
		return r
	}
	return ','
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// String returns a representation safe for logging. The database URL,
// which may embed credentials, is masked.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "logging={level:%s format:%s} ", c.Logging.Level, c.Logging.Format)
	fmt.Fprintf(&b, "transform={strict:%v maxFileSize:%d maxConcurrent:%d resultTTL:%s} ",
		c.Transform.Strict, c.Transform.MaxFileSize, c.Transform.MaxConcurrent, c.Transform.ResultTTL)
	fmt.Fprintf(&b, "server={addr:%s} ", c.Server.Addr())
	if c.Database.URL != "" {
		fmt.Fprintf(&b, "database={url:**** maxConns:%d}", c.Database.MaxConns)
	} else {
		b.WriteString("database={disabled}")
	}
	return b.String()
}
