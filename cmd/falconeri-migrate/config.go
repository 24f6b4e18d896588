package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/falconeri/falconeri/internal/config"
)

// ErrDatabaseURLEmpty is returned when DATABASE_URL is unset.
var ErrDatabaseURLEmpty = errors.New("DATABASE_URL cannot be empty")

// Config holds the falconeri-migrate CLI's configuration.
type Config struct {
	DatabaseURL    string
	MigrationTable string
}

// LoadConfig loads configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// String renders the configuration with the database password masked, for
// safe logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}", maskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}

func maskDatabaseURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if u.User == nil {
		return rawURL
	}

	if password, hasPassword := u.User.Password(); hasPassword && password != "" {
		u.User = url.UserPassword(u.User.Username(), "***")

		return strings.Replace(u.String(), "%2A%2A%2A", "***", 1)
	}

	return rawURL
}
