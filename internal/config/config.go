// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreQdrant   = "qdrant"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int           `env:"TSUNAGI_PORT" envDefault:"8080"`
	ReadTimeout         time.Duration `env:"TSUNAGI_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout        time.Duration `env:"TSUNAGI_WRITE_TIMEOUT" envDefault:"30s"`
	MaxRequestBodyBytes int64         `env:"TSUNAGI_MAX_REQUEST_BODY_BYTES" envDefault:"1048576"`
	ShutdownTimeout     time.Duration `env:"TSUNAGI_SHUTDOWN_TIMEOUT" envDefault:"15s"` // 0 waits for in-flight requests indefinitely.

	// Document store selection.
	Store       string `env:"TSUNAGI_STORE" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"TSUNAGI_SQLITE_PATH" envDefault:"tsunagi.db"`

	// Qdrant settings (TSUNAGI_STORE=qdrant).
	QdrantURL        string `env:"QDRANT_URL"`
	QdrantAPIKey     string `env:"QDRANT_API_KEY"`
	QdrantCollection string `env:"TSUNAGI_QDRANT_COLLECTION" envDefault:"tsunagi_documents"`

	// Query task settings.
	QueryDefaultLimit int           `env:"TSUNAGI_QUERY_DEFAULT_LIMIT" envDefault:"100"`
	QueryMaxLimit     int           `env:"TSUNAGI_QUERY_MAX_LIMIT" envDefault:"1000"`
	QueryTimeout      time.Duration `env:"TSUNAGI_QUERY_TIMEOUT" envDefault:"10s"`

	// YAML documents written to the store at startup.
	SeedFile string `env:"TSUNAGI_SEED_FILE"`

	// Auth. Either setting enables authentication on /v1 and /mcp.
	JWTPublicKeyPath string `env:"TSUNAGI_JWT_PUBLIC_KEY"` // Path to Ed25519 public key PEM file.
	APIKeyHash       string `env:"TSUNAGI_API_KEY_HASH"`   // argon2id hash from scripts/genkey.

	// Per-client rate limit. Zero RPS disables limiting.
	RateLimitRPS   float64 `env:"TSUNAGI_RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst int     `env:"TSUNAGI_RATE_LIMIT_BURST" envDefault:"20"`

	MCPEnabled bool `env:"TSUNAGI_MCP_ENABLED" envDefault:"false"`

	// OTEL settings.
	OTELEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"tsunagi"`
	OTELInsecure bool   `env:"TSUNAGI_OTEL_INSECURE" envDefault:"false"`

	LogLevel string `env:"TSUNAGI_LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: TSUNAGI_PORT=%d is out of range", c.Port)
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: TSUNAGI_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("config: TSUNAGI_SHUTDOWN_TIMEOUT must not be negative")
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required when TSUNAGI_STORE=postgres")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: TSUNAGI_SQLITE_PATH is required when TSUNAGI_STORE=sqlite")
		}
	case StoreQdrant:
		if c.QdrantURL == "" {
			return fmt.Errorf("config: QDRANT_URL is required when TSUNAGI_STORE=qdrant")
		}
		if c.SeedFile != "" {
			return fmt.Errorf("config: TSUNAGI_SEED_FILE is not supported with the qdrant store")
		}
	default:
		return fmt.Errorf("config: TSUNAGI_STORE=%q is not one of memory, postgres, sqlite, qdrant", c.Store)
	}

	if c.QueryDefaultLimit <= 0 {
		return fmt.Errorf("config: TSUNAGI_QUERY_DEFAULT_LIMIT must be positive")
	}
	if c.QueryMaxLimit < c.QueryDefaultLimit {
		return fmt.Errorf("config: TSUNAGI_QUERY_MAX_LIMIT must be at least TSUNAGI_QUERY_DEFAULT_LIMIT")
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("config: TSUNAGI_QUERY_TIMEOUT must not be negative")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("config: TSUNAGI_RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: TSUNAGI_RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	return nil
}

// AuthEnabled reports whether any credential check is configured.
func (c Config) AuthEnabled() bool {
	return c.JWTPublicKeyPath != "" || c.APIKeyHash != ""
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
