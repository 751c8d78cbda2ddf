package dbconfig

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds database connection settings.
type Config struct {
	Driver   string `env:"DB_DRIVER"` // "pgx" or "sqlite"
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Database string `env:"DB_NAME"`
	SSLMode  string `env:"DB_SSLMODE"`
	Path     string `env:"DB_PATH"` // SQLite file
}

func DefaultConfig() Config {
	return Config{
		Driver:   "pgx",
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "cubedraft",
		SSLMode:  "disable",
		Path:     "cubedraft.db",
	}
}

// NewConfigFromEnv overlays DB_* environment variables on the defaults.
func NewConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse database config: %w", err)
	}
	return cfg, nil
}

// PostgresURL returns the Postgres connection URL.
func (c Config) PostgresURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return c.PostgresURL()
}
