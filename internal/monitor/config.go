// Package monitor samples engine health on an interval, raises threshold
// alerts with per-key cooldowns, and forwards them to the webhook dispatcher.
package monitor

import (
	"time"

	"github.com/supermarket-io/processor/internal/config"
)

const (
	defaultInterval       = 30 * time.Second
	defaultCooldown       = 5 * time.Minute
	defaultMinSuccessRate = 0.90
	defaultMaxErrors24h   = 1000
	defaultMaxMemoryMB    = 1024
	defaultPoolUsageRate  = 0.90

	// minProcessedForRate is the floor below which a per-job success rate is
	// too noisy to alert on.
	minProcessedForRate = 20
)

// Config holds monitoring agent configuration.
type Config struct {
	// Version is the build version reported on health-check events. Set by
	// the entrypoint, not the environment.
	Version string
	// Interval between samples.
	Interval time.Duration
	// Cooldown suppresses repeats of the same alert key.
	Cooldown time.Duration
	// MinSuccessRate is the per-job success-rate floor checked on every
	// progress beat.
	MinSuccessRate float64
	// MaxErrors24h is the 24-hour error-count ceiling.
	MaxErrors24h int
	// MaxMemoryMB is the process heap ceiling in MiB.
	MaxMemoryMB int
	// PoolUsageRate is the connection-pool utilization ceiling.
	PoolUsageRate float64
}

// LoadConfig loads monitoring configuration from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Interval:       config.GetEnvDuration("MONITOR_INTERVAL", defaultInterval),
		Cooldown:       config.GetEnvDuration("MONITOR_ALERT_COOLDOWN", defaultCooldown),
		MinSuccessRate: config.GetEnvFloat("MIN_SUCCESS_RATE", defaultMinSuccessRate),
		MaxErrors24h:   config.GetEnvInt("MONITOR_MAX_ERRORS_24H", defaultMaxErrors24h),
		MaxMemoryMB:    config.GetEnvInt("MONITOR_MAX_MEMORY_MB", defaultMaxMemoryMB),
		PoolUsageRate:  config.GetEnvFloat("MONITOR_MAX_POOL_USAGE", defaultPoolUsageRate),
	}
}

// normalize clamps nonsensical values back to defaults.
func (c *Config) normalize() {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}

	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}

	if c.MinSuccessRate <= 0 || c.MinSuccessRate > 1 {
		c.MinSuccessRate = defaultMinSuccessRate
	}
}
