package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the Q&A service.
// Environment variables are parsed from the ASKLOOP_ prefix.
type Config struct {
	// Build target selects the high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override drivers
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Postgres configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// SQLite configuration (local target)
	SQLitePath string `envconfig:"SQLITE_PATH" default:"askloop.db"`

	// Vector index configuration
	SearchIndexURL string `envconfig:"SEARCH_INDEX_URL" default:"weaviate:8080"`
	Vectorizer     string `envconfig:"VECTORIZER" default:"text2vec-transformers"`

	// Notification sink configuration. Empty webhook URL disables the
	// webhook sink; the store-backed inbox sink is always on.
	NotifyWebhookURL     string `envconfig:"NOTIFY_WEBHOOK_URL" default:""`
	NotifyTimeoutSeconds int    `envconfig:"NOTIFY_TIMEOUT_SECONDS" default:"5"`

	// Outbox worker configuration
	OutboxBatchSize       int `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxIntervalSeconds int `envconfig:"OUTBOX_INTERVAL_SECONDS" default:"2"`

	// Health checker configuration
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"5"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to
// "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud-dev", "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}

	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("ASKLOOP_POSTGRES_DSN required for postgres driver")
	}
	return nil
}

// IsDevMode reports whether the service runs with development defaults
// (static authorizer, relaxed startup checks).
func (c *Config) IsDevMode() bool {
	return c.Environment != EnvProduction
}

// New creates a new Config by parsing environment variables.
// Variables are prefixed with ASKLOOP_, e.g. ASKLOOP_HTTP_PORT.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("ASKLOOP", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
