// Package config provides functions for reading config settings from ENV.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Unset and unparseable values fall back to the default; a typo in an env
// var degrades to documented behavior instead of crashing startup.

// GetEnvStr returns the environment variable value, or the default when
// unset or empty.
func GetEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// GetEnvInt parses the environment variable as an int.
func GetEnvInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi)
}

// GetEnvInt64 parses the environment variable as an int64.
func GetEnvInt64(key string, defaultValue int64) int64 {
	return parseEnv(key, defaultValue, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

// GetEnvFloat parses the environment variable as a float64.
func GetEnvFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetEnvDuration parses the environment variable in time.ParseDuration
// syntax ("30s", "5m").
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration)
}

// GetEnvBool parses the environment variable as a boolean. Accepted true
// values are "true", "1", "yes"; false values "false", "0", "no". Matching
// is case-insensitive.
func GetEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// GetEnvLogLevel parses the environment variable as a slog level: "debug",
// "info", "warn"/"warning", or "error", case-insensitive.
func GetEnvLogLevel(key string, defaultValue slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultValue
	}
}

// ParseCommaSeparatedList splits a comma-separated value into trimmed,
// non-empty parts.
func ParseCommaSeparatedList(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := parse(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}
