// Package config loads the mirror's settings from environment variables.
// Unset values fall back to defaults, and the whole configuration is
// validated at startup so a bad deployment fails before serving traffic.
package config

import (
	"net"
	"strconv"
	"time"
)

// Store drivers accepted by DatabaseConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Source   SourceConfig
	Refresh  RefreshConfig
	Export   ExportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout must cover a full refresh when triggered over HTTP (default: 6m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"6m"`

	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to every route except refresh (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig selects and configures the store.
type DatabaseConfig struct {
	// Driver is one of postgres, sqlite, memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file for the sqlite driver (default: ipampa.db)
	SQLitePath string `env:"SQLITE_PATH" default:"ipampa.db"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SourceConfig describes where and how the index archive is downloaded.
type SourceConfig struct {
	URL string `env:"SOURCE_URL" default:"https://bdm.insee.fr/famille/117608561/csv?lang=fr"`

	// Timeout bounds a single download (default: 60s)
	Timeout time.Duration `env:"SOURCE_TIMEOUT" default:"60s"`

	// MaxBytes caps the archive size (default: 64MB)
	MaxBytes int64 `env:"SOURCE_MAX_BYTES" default:"67108864"`

	// UserAgent overrides the browser-like default when set
	UserAgent string `env:"SOURCE_USER_AGENT"`

	// Origin is sent as the Origin and Referer headers (default: https://www.insee.fr)
	Origin string `env:"SOURCE_ORIGIN" default:"https://www.insee.fr"`
}

// RefreshConfig holds refresh settings.
type RefreshConfig struct {
	// Timeout bounds a whole refresh, detached from the caller (default: 5m)
	Timeout time.Duration `env:"REFRESH_TIMEOUT" default:"5m"`

	// FamilyMarker must appear in a label for the row to be kept (default: IPAMPA)
	FamilyMarker string `env:"REFRESH_FAMILY_MARKER" default:"IPAMPA"`

	// Interval schedules background refreshes; 0 disables them (default: 0)
	Interval time.Duration `env:"REFRESH_INTERVAL" default:"0s"`

	// OnStart refreshes once when the server starts (default: false)
	OnStart bool `env:"REFRESH_ON_START" default:"false"`
}

// ExportConfig bounds concurrent export builds.
type ExportConfig struct {
	MaxConcurrent int           `env:"EXPORT_MAX_CONCURRENT" default:"4"`
	MaxWaitTime   time.Duration `env:"EXPORT_MAX_WAIT_TIME" default:"10s"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// RefreshLimit is requests per minute for the refresh endpoint (default: 2)
	RefreshLimit int `env:"RATE_LIMIT_REFRESH" default:"2"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SourceHeaders returns the origin-derived request headers for the source fetch.
func (c *SourceConfig) SourceHeaders() map[string]string {
	if c.Origin == "" {
		return nil
	}
	return map[string]string{
		"Origin":  c.Origin,
		"Referer": c.Origin + "/",
	}
}
