package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Room state and presence
	RedisURL string

	// Snapshot store, first configured wins: Postgres, SQLite, Pebble
	DatabaseURL string
	SQLitePath  string
	PebbleDir   string

	// Durable event log; empty uses Redis Streams on RedisURL
	EventLogURL       string
	EventQueue        string
	SnapshotBatchSize int

	// Mutation processor
	HistoryLimit    int
	RoomIdleTimeout time.Duration
	MutationTimeout time.Duration

	// Boundary services
	RoomDirectoryURL string
	AuthSecret       string
	AuthRequired     bool

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
	WSMutationRate     float64  // mutations per second per connection, 0 disables
	WSMutationBurst    int

	CORSOrigins []string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		RedisURL:           os.Getenv("REDIS_URL"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		PebbleDir:          os.Getenv("PEBBLE_DIR"),
		EventLogURL:        os.Getenv("EVENT_LOG_URL"),
		EventQueue:         getEnv("EVENT_QUEUE", "room-events"),
		SnapshotBatchSize:  getInt("SNAPSHOT_BATCH_SIZE", 5),
		HistoryLimit:       getInt("HISTORY_LIMIT", 100),
		RoomIdleTimeout:    getDuration("ROOM_IDLE_TIMEOUT", 2*time.Minute),
		MutationTimeout:    getDuration("MUTATION_TIMEOUT", 5*time.Second),
		RoomDirectoryURL:   os.Getenv("ROOM_DIRECTORY_URL"),
		AuthSecret:         os.Getenv("AUTH_SECRET"),
		AuthRequired:       getEnv("AUTH_REQUIRED", "false") == "true",
		AutoBlockEnabled:   getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
		WSMutationRate:     getFloat("WS_MUTATION_RATE", 50),
		WSMutationBurst:    getInt("WS_MUTATION_BURST", 100),
		RateLimitWhitelist: splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		CORSOrigins:        splitList(getEnv("CORS_ORIGIN", "*")),
	}

	if cfg.RedisURL == "" && cfg.IsDevelopment() {
		cfg.RedisURL = "redis://localhost:6379/0"
	}

	if cfg.AuthRequired && cfg.AuthSecret == "" {
		panic("AUTH_SECRET is required when AUTH_REQUIRED=true")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Validate reports settings that parse but cannot work.
func (c *Config) Validate() error {
	if c.SnapshotBatchSize < 1 {
		return fmt.Errorf("SNAPSHOT_BATCH_SIZE must be at least 1, got %d", c.SnapshotBatchSize)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("HISTORY_LIMIT must be at least 1, got %d", c.HistoryLimit)
	}
	if c.WSMutationRate < 0 {
		return fmt.Errorf("WS_MUTATION_RATE must not be negative")
	}
	return nil
}

// ValidateServer adds the gateway's own requirements to Validate.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Env == "production" && c.RoomDirectoryURL == "" {
		return fmt.Errorf("ROOM_DIRECTORY_URL is required in production")
	}
	return nil
}

// ValidateSnapshotter adds the snapshot builder's requirements to Validate.
// Redis is needed only as the event log backend.
func (c *Config) ValidateSnapshotter() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.RedisURL == "" && !c.UsesAMQP() {
		return fmt.Errorf("REDIS_URL is required unless EVENT_LOG_URL selects AMQP")
	}
	return nil
}

// UsesAMQP reports whether EVENT_LOG_URL selects the AMQP backend.
func (c *Config) UsesAMQP() bool {
	return strings.HasPrefix(c.EventLogURL, "amqp://") || strings.HasPrefix(c.EventLogURL, "amqps://")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
