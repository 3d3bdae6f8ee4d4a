// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreNATS   = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Storage
	StoreBackend string
	SQLitePath   string

	// NATS settings
	NATSURL             string
	NATSCAFile          string
	NATSCertFile        string
	NATSKeyFile         string
	NATSToken           string
	NATSKVBucket        string
	EventsStreamEnabled bool

	// Response generation
	GenerationMinDelay time.Duration
	GenerationMaxDelay time.Duration
	GenerationTimeout  time.Duration

	// History view
	SearchDebounce time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. Values from a .env
// file in the working directory are used when the variable is not already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Storage
		StoreBackend: getEnv("STORE_BACKEND", StoreSQLite),
		SQLitePath:   getEnv("SQLITE_PATH", "conversations.db"),

		// NATS
		NATSURL:             getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:          getEnv("NATS_CA_FILE", ""),
		NATSCertFile:        getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:         getEnv("NATS_KEY_FILE", ""),
		NATSToken:           getEnv("NATS_TOKEN", ""),
		NATSKVBucket:        getEnv("NATS_KV_BUCKET", "conversations"),
		EventsStreamEnabled: getBoolEnv("EVENTS_STREAM_ENABLED", false),

		// Response generation
		GenerationMinDelay: getDurationEnv("GENERATION_MIN_DELAY", 1500*time.Millisecond),
		GenerationMaxDelay: getDurationEnv("GENERATION_MAX_DELAY", 2500*time.Millisecond),
		GenerationTimeout:  getDurationEnv("GENERATION_TIMEOUT", 30*time.Second),

		// History view
		SearchDebounce: getDurationEnv("SEARCH_DEBOUNCE", 300*time.Millisecond),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// NeedsNATS reports whether any component requires a NATS connection.
func (c *Config) NeedsNATS() bool {
	return c.StoreBackend == StoreNATS || c.EventsStreamEnabled
}

// Validate checks settings that have no safe fallback.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreSQLite, StoreNATS:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.StoreBackend == StoreSQLite && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
	}
	if c.GenerationMaxDelay < c.GenerationMinDelay {
		return fmt.Errorf("GENERATION_MAX_DELAY (%s) is below GENERATION_MIN_DELAY (%s)", c.GenerationMaxDelay, c.GenerationMinDelay)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
