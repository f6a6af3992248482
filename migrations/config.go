package main

import (
	"fmt"
	"net/url"
	"os"
)

// Config holds the migrator's connection settings.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string. Required.
	DatabaseURL string

	// MigrationTable tracks applied versions, schema_migrations by default.
	MigrationTable string
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	config := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrationTable: os.Getenv("MIGRATION_TABLE"),
	}

	if config.MigrationTable == "" {
		config.MigrationTable = "schema_migrations"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	return nil
}

// String renders the configuration with the password masked, safe for logs.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		maskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}

// maskDatabaseURL replaces the password component with asterisks. URLs that
// do not parse are masked wholesale rather than risking a password in logs.
func maskDatabaseURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable database url>"
	}

	if parsed.User == nil {
		return rawURL
	}

	if _, hasPassword := parsed.User.Password(); !hasPassword {
		return rawURL
	}

	parsed.User = url.UserPassword(parsed.User.Username(), "***")

	return parsed.String()
}
