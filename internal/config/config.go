// Package config provides application configuration loading from environment variables and .env files.
// It uses viper for flexible configuration management with sensible defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the growthkit sidecar and CLI.
// Configuration priority: environment variables > .env file > defaults.
type Config struct {
	AppEnv      string // Application environment (dev, staging, prod)
	HTTPAddr    string // HTTP server bind address (e.g., ":8080")
	MetricsAddr string // Metrics server bind address

	PayloadURL  string        // Base URL of the definitions API (e.g., "https://cdn.growthbook.io")
	ClientKey   string        // Client key appended to the features endpoint path
	PayloadFile string        // Local definitions file, watched for changes (alternative to PayloadURL)
	RefreshTTL  time.Duration // How long a fetched payload stays fresh
	SSE         bool          // Keep a server-sent-events stream open for payload pushes

	HashAttribute        string   // Default attribute users are bucketed on
	IdentifierAttributes []string // Extra identifying attributes for sticky-bucket merging

	StickyStore string // Sticky bucket backend (none, memory, redis, postgres)
	RedisAddr   string // Redis address when StickyStore=redis
	DatabaseDSN string // PostgreSQL connection string when StickyStore=postgres
}

// Load reads configuration from environment variables and .env file (if present).
// Environment variables take precedence over .env file values.
// Use Validate() to check the result before serving.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env") // Optional; silently ignored if file doesn't exist
	_ = v.ReadInConfig()    // Ignore error - .env is optional
	v.AutomaticEnv()        // Read from environment variables

	setConfigDefaults(v)

	return &Config{
		AppEnv:               v.GetString("APP_ENV"),
		HTTPAddr:             v.GetString("APP_HTTP_ADDR"),
		MetricsAddr:          v.GetString("METRICS_ADDR"),
		PayloadURL:           v.GetString("PAYLOAD_URL"),
		ClientKey:            v.GetString("CLIENT_KEY"),
		PayloadFile:          v.GetString("PAYLOAD_FILE"),
		RefreshTTL:           v.GetDuration("REFRESH_TTL"),
		SSE:                  v.GetBool("SSE"),
		HashAttribute:        v.GetString("HASH_ATTRIBUTE"),
		IdentifierAttributes: v.GetStringSlice("IDENTIFIER_ATTRIBUTES"),
		StickyStore:          v.GetString("STICKY_STORE"),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		DatabaseDSN:          v.GetString("DB_DSN"),
	}, nil
}

// setConfigDefaults sets default values for all configuration options.
// These defaults are suitable for local development but should be overridden in production.
func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_HTTP_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("REFRESH_TTL", "60s")
	v.SetDefault("SSE", false)
	v.SetDefault("HASH_ATTRIBUTE", "id")
	v.SetDefault("STICKY_STORE", "none")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
}

// ValidationError represents a configuration validation error with details about what failed.
type ValidationError struct {
	Field   string // Name of the configuration field
	Message string // Human-readable error message
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks that the configuration is usable, failing fast at startup
// on the first violated constraint.
//
// Validation Rules:
//  1. Exactly one definitions source must be set: PAYLOAD_URL or PAYLOAD_FILE
//  2. PAYLOAD_URL requires CLIENT_KEY
//  3. STICKY_STORE must be one of: none, memory, redis, postgres
//  4. STICKY_STORE=postgres requires DB_DSN; redis requires REDIS_ADDR
//  5. HTTPAddr, MetricsAddr and RefreshTTL must be non-empty/positive
func (c *Config) Validate() error {
	if c.PayloadURL == "" && c.PayloadFile == "" {
		return ValidationError{
			Field:   "PAYLOAD_URL",
			Message: "a definitions source is required: set PAYLOAD_URL or PAYLOAD_FILE",
		}
	}
	if c.PayloadURL != "" && c.PayloadFile != "" {
		return ValidationError{
			Field:   "PAYLOAD_FILE",
			Message: "PAYLOAD_URL and PAYLOAD_FILE are mutually exclusive",
		}
	}
	if c.PayloadURL != "" && c.ClientKey == "" {
		return ValidationError{
			Field:   "CLIENT_KEY",
			Message: "client key is required when PAYLOAD_URL is set",
		}
	}
	if c.SSE && c.PayloadURL == "" {
		return ValidationError{
			Field:   "SSE",
			Message: "SSE streaming requires PAYLOAD_URL",
		}
	}

	switch c.StickyStore {
	case "none", "memory", "redis", "postgres":
	default:
		return ValidationError{
			Field:   "STICKY_STORE",
			Message: fmt.Sprintf("must be 'none', 'memory', 'redis' or 'postgres', got '%s'", c.StickyStore),
		}
	}
	if c.StickyStore == "postgres" && c.DatabaseDSN == "" {
		return ValidationError{
			Field:   "DB_DSN",
			Message: "database DSN is required when STICKY_STORE=postgres",
		}
	}
	if c.StickyStore == "redis" && c.RedisAddr == "" {
		return ValidationError{
			Field:   "REDIS_ADDR",
			Message: "redis address is required when STICKY_STORE=redis",
		}
	}

	if c.HTTPAddr == "" {
		return ValidationError{
			Field:   "APP_HTTP_ADDR",
			Message: "HTTP server address cannot be empty",
		}
	}
	if c.MetricsAddr == "" {
		return ValidationError{
			Field:   "METRICS_ADDR",
			Message: "metrics server address cannot be empty",
		}
	}
	if c.RefreshTTL <= 0 {
		return ValidationError{
			Field:   "REFRESH_TTL",
			Message: "refresh TTL must be positive",
		}
	}
	return nil
}
