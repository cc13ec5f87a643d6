package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Reconcile ReconcileConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"postgres"`
	Host       string `env:"DB_HOST" envDefault:"localhost"`
	Port       string `env:"DB_PORT" envDefault:"5432"`
	User       string `env:"DB_USER" envDefault:"postgres"`
	Password   string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"contests"`
	SSLMode    string `env:"DB_SSLMODE" envDefault:"disable"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"contests.db"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string   `env:"SERVER_PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	FrontendURL    string   `env:"FRONTEND_URL"`
}

// ReconcileConfig controls the reconciliation loop
type ReconcileConfig struct {
	Enabled  bool          `env:"RECONCILE_ENABLED" envDefault:"true"`
	Interval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}

	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", c.Reconcile.Interval)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}
	return nil
}

// Origins returns the CORS origins including FRONTEND_URL when set
func (c *Config) Origins() []string {
	origins := append([]string{}, c.Server.AllowedOrigins...)
	if c.Server.FrontendURL != "" {
		origins = append(origins, c.Server.FrontendURL)
	}
	return origins
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}
