// Package aliasing maps external shop names to canonical shop types.
//
// Upstream scrapers and orchestration flows name shops inconsistently
// ("albert-heijn", "AH", "jumbo-supermarkten"), while the transformer
// registry keys on canonical shop types. This package loads the alias table
// and resolves incoming names to canonical ones.
package aliasing

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds shop alias configuration loaded from YAML.
type Config struct {
	// ShopAliases maps external shop names to canonical shop types.
	// Key is the alias, value is the canonical shop type.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	ShopAliases map[string]string `yaml:"shop_aliases"`
}

// DefaultConfigPath is the default location of the alias file.
const DefaultConfigPath = ".processor.yaml"

// ConfigPathEnvVar overrides the alias file location.
const ConfigPathEnvVar = "SHOP_ALIASES_PATH"

// LoadConfig loads alias configuration from a YAML file at the given path.
//
// Aliasing is optional, so loading degrades gracefully: a missing file,
// unreadable file, or invalid YAML yields an empty config and a log line,
// never an error. Built-in aliases still apply in every case.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		ShopAliases: make(map[string]string),
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Alias file not found, continuing with built-in aliases",
				slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("Failed to read alias file, continuing with built-in aliases",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse alias file, continuing with built-in aliases",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &Config{ShopAliases: make(map[string]string)}, nil
	}

	if cfg.ShopAliases == nil {
		cfg.ShopAliases = make(map[string]string)
	}

	return cfg, nil
}

// ConfigPath returns the alias file path from the environment, or the
// default in the working directory.
func ConfigPath() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}

	return DefaultConfigPath
}
