// Package middleware provides HTTP middleware components for the processor API.
package middleware

import (
	"time"

	"github.com/supermarket-io/processor/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for three tiers:
//   - Global: Applied to all requests
//   - Per-client: Applied to authenticated requests
//   - Unauthenticated: Applied to requests without a client ID
//
// Burst capacity allows temporary bursts above sustained rate.
// If burst fields are 0, they are computed automatically as 2 × rate.
type Config struct {
	// Rate limits (requests per second)
	GlobalRPS int // Default: 100
	ClientRPS int // Default: 50
	UnAuthRPS int // Default: 10

	// Optional burst capacity overrides (0 = computed as 2 × rate)
	GlobalBurst int
	ClientBurst int
	UnAuthBurst int

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxClients      int           // Default: 100
}

// LoadConfig loads middleware config from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("RATE_LIMIT_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("RATE_LIMIT_CLIENT_RPS", defaultClientRPS),
		UnAuthRPS: config.GetEnvInt("RATE_LIMIT_UNAUTH_RPS", defaultUnAuthRPS),

		// Burst overrides (0 = auto-compute)
		GlobalBurst: config.GetEnvInt("RATE_LIMIT_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("RATE_LIMIT_CLIENT_BURST", 0),
		UnAuthBurst: config.GetEnvInt("RATE_LIMIT_UNAUTH_BURST", 0),

		CleanupInterval: config.GetEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval),
		IdleTimeout:     config.GetEnvDuration("RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:      config.GetEnvInt("RATE_LIMIT_MAX_CLIENTS", maxClients),
	}
}
