// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Mapping  MappingConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 5000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"5000"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, imports can be long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty selects the in-memory store.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds file upload and import settings.
type UploadConfig struct {
	// Dir is where uploaded files are kept between preview and import (default: uploads/tmp)
	Dir string `env:"UPLOAD_DIR" default:"uploads/tmp"`

	// MaxFileSize is the maximum allowed file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of parallel imports (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// BatchSize is how many rows share one duplicate lookup; 1 looks up row by row (default: 500)
	BatchSize int `env:"UPLOAD_BATCH_SIZE" default:"500"`

	// Timeout is the maximum duration for a single import (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`

	// Retention is how long stored uploads are kept (default: 24h)
	Retention time.Duration `env:"UPLOAD_RETENTION" default:"24h"`

	// SweepInterval is how often expired uploads are removed (default: 1h)
	SweepInterval time.Duration `env:"UPLOAD_SWEEP_INTERVAL" default:"1h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload and import endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// JWTSecret signs tenant bearer tokens (HS256, required)
	JWTSecret string `env:"JWT_SECRET" required:"true"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// MappingConfig holds auto-mapping settings.
type MappingConfig struct {
	// CacheSize is the maximum number of cached mappings (default: 1024)
	CacheSize int `env:"MAPPING_CACHE_SIZE" default:"1024"`

	// CacheTTL is how long a cached mapping stays valid (default: 1h)
	CacheTTL time.Duration `env:"MAPPING_CACHE_TTL" default:"1h"`

	// Precedence is "exact" or "semantic" (default: exact)
	Precedence string `env:"MAPPING_PRECEDENCE" default:"exact"`

	// Timeout bounds one semantic resolution (default: 30s)
	Timeout time.Duration `env:"MAPPING_TIMEOUT" default:"30s"`

	// Resolver picks the semantic matcher: auto, ollama, rules or chain (default: auto).
	// auto uses Ollama when OLLAMA_URL is set and the synonym rules otherwise;
	// chain lets the rules answer when Ollama fails.
	Resolver string `env:"MAPPING_RESOLVER" default:"auto"`

	// OllamaURL is the Ollama API base URL, e.g. http://localhost:11434.
	// Unset means no LLM resolver.
	OllamaURL string `env:"OLLAMA_URL"`

	// OllamaModel is the chat model used for mapping (default: llama2:7b)
	OllamaModel string `env:"OLLAMA_MODEL" default:"llama2:7b"`

	// SynonymsFile overrides the built-in synonym table (YAML)
	SynonymsFile string `env:"MAPPING_SYNONYMS_FILE"`
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
	return c.Host + ":" + strconv.Itoa(c.Port)
}
