package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Customer key variants understood by READINGS_CUSTOMER_KEY.
const (
	CustomerKeyDirect = "direct"
	CustomerKeyCode   = "code"
)

// Config holds all application configuration
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"solar-dashboard"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	// Timezone is the canonical zone used for calendar-day boundaries.
	Timezone    string `env:"DASHBOARD_TIMEZONE" envDefault:"UTC"`
	CustomerKey string `env:"READINGS_CUSTOMER_KEY" envDefault:"code"`

	Database   DatabaseConfig
	Auth       AuthConfig
	RabbitMQ   RabbitMQConfig
	Validation ValidationConfig

	location *time.Location
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL,required,notEmpty"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns int32  `env:"DB_MIN_CONNS" envDefault:"1"`
}

// AuthConfig holds the admin credential, session and machine key settings
type AuthConfig struct {
	AdminUsername  string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword  string        `env:"ADMIN_PASSWORD,required,notEmpty"`
	SecretKey      string        `env:"SECRET_KEY,required,notEmpty"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	APIKey         string        `env:"API_KEY"`
	LoginRateLimit float64       `env:"LOGIN_RATE_LIMIT" envDefault:"5"`
	LoginRateBurst int           `env:"LOGIN_RATE_BURST" envDefault:"10"`
}

// RabbitMQConfig holds RabbitMQ connection and queue settings.
// An empty URL disables reading ingestion and customer events.
type RabbitMQConfig struct {
	URL                string `env:"RABBITMQ_URL"`
	IngestExchange     string `env:"RABBITMQ_INGEST_EXCHANGE" envDefault:"solar-dashboard.ingest.exchange"`
	IngestQueue        string `env:"RABBITMQ_INGEST_QUEUE" envDefault:"solar-dashboard.ingest.queue"`
	IngestRoutingKey   string `env:"RABBITMQ_INGEST_ROUTING_KEY" envDefault:"meter.reading.raw"`
	DLQQueue           string `env:"RABBITMQ_DLQ_QUEUE" envDefault:"solar-dashboard.ingest.dlq"`
	PrefetchCount      int    `env:"RABBITMQ_PREFETCH" envDefault:"10"`
	EventsExchange     string `env:"RABBITMQ_EVENTS_EXCHANGE" envDefault:"solar-dashboard.events.exchange"`
	CustomerRoutingKey string `env:"RABBITMQ_CUSTOMER_ROUTING_KEY" envDefault:"customer.registered"`
}

// ValidationConfig holds ingestion validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int `env:"VALIDATION_TIMESTAMP_TOLERANCE_MINUTES" envDefault:"10080"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("DASHBOARD_TIMEZONE %q is not a valid IANA zone: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	switch cfg.CustomerKey {
	case CustomerKeyDirect, CustomerKeyCode:
	default:
		return nil, fmt.Errorf("READINGS_CUSTOMER_KEY must be %q or %q, got %q", CustomerKeyDirect, CustomerKeyCode, cfg.CustomerKey)
	}

	return cfg, nil
}

// Location returns the canonical timezone, UTC when the config was not produced by Load.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// IngestionEnabled reports whether a broker is configured.
func (c *Config) IngestionEnabled() bool {
	return c.RabbitMQ.URL != ""
}
