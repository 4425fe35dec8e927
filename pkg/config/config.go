package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/aryan0dhankhar/queueline/pkg/database"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds the application configuration
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort  int    `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	StorageDriver  string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"queueline"`
	DBPassword     string `envconfig:"DB_PASSWORD" default:"queueline"`
	DBName         string `envconfig:"DB_NAME" default:"queueline"`
	DBSSLMode      string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`

	// Empty RedisURL keeps fan-out in process. Empty RabbitURL disables the AMQP sink.
	RedisURL        string `envconfig:"REDIS_URL"`
	RabbitURL       string `envconfig:"RABBIT_URL"`
	EventsExchange  string `envconfig:"EVENTS_EXCHANGE" default:"queueline.events"`
	EventBufferSize int    `envconfig:"EVENT_BUFFER_SIZE" default:"1024"`

	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"queueline"`

	CORSAllowedOrigins  []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	RateLimitPerMinute  int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	PublicJoinPerMinute int      `envconfig:"PUBLIC_JOIN_PER_MINUTE" default:"10"`

	MinutesPerPosition   int `envconfig:"MINUTES_PER_POSITION" default:"5"`
	AuditIntervalMinutes int `envconfig:"AUDIT_INTERVAL_MINUTES" default:"5"`

	EmailFrom    string `envconfig:"EMAIL_FROM" default:"Queueline <noreply@queueline.local>"`
	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and cross-field requirements
func (c *Config) Validate() error {
	var errs []error
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid SERVER_PORT: %d", c.ServerPort))
	}
	switch c.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("invalid STORAGE_DRIVER: %q", c.StorageDriver))
	}
	if c.MinutesPerPosition <= 0 {
		errs = append(errs, errors.New("MINUTES_PER_POSITION must be positive"))
	}
	if c.AuditIntervalMinutes <= 0 {
		errs = append(errs, errors.New("AUDIT_INTERVAL_MINUTES must be positive"))
	}
	if c.RateLimitPerMinute <= 0 || c.PublicJoinPerMinute <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters in production"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// DatabaseConfig maps the DB_* keys onto the pool configuration
func (c *Config) DatabaseConfig() *database.Config {
	return &database.Config{
		Host:            c.DBHost,
		Port:            c.DBPort,
		User:            c.DBUser,
		Password:        c.DBPassword,
		Database:        c.DBName,
		SSLMode:         c.DBSSLMode,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxOpenConns / 5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// AuditInterval is the auditor period
func (c *Config) AuditInterval() time.Duration {
	return time.Duration(c.AuditIntervalMinutes) * time.Minute
}
