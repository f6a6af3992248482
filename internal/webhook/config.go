// Package webhook delivers processing events to an external orchestrator
// over HTTP, best-effort with bounded retries. Delivery failures never reach
// the caller; a job's outcome is the same whether the endpoint responds or
// permanently fails.
package webhook

import (
	"time"

	"github.com/supermarket-io/processor/internal/config"
)

const (
	defaultTimeoutMS     = 5000
	defaultRetryAttempts = 3
	defaultMaxInFlight   = 16

	// backoff parameters between delivery attempts.
	backoffBase   = time.Second
	backoffFactor = 2
	backoffCap    = 30 * time.Second

	// progressEvery posts job.progress every Nth batch (plus the final one).
	progressEvery = 10
)

// Config holds webhook dispatcher configuration.
type Config struct {
	// BaseURL is the orchestrator endpoint base. Empty disables dispatch.
	BaseURL string
	// Timeout bounds each delivery attempt.
	Timeout time.Duration
	// RetryAttempts is the total number of delivery attempts per event.
	RetryAttempts int
	// MaxInFlight bounds concurrent deliveries; overflow events are dropped
	// with a warning.
	MaxInFlight int
}

// LoadConfig loads webhook configuration from environment variables with
// fallback to defaults. WEBHOOK_TIMEOUT is in milliseconds.
func LoadConfig() *Config {
	return &Config{
		BaseURL:       config.GetEnvStr("WEBHOOK_BASE_URL", ""),
		Timeout:       time.Duration(config.GetEnvInt("WEBHOOK_TIMEOUT", defaultTimeoutMS)) * time.Millisecond,
		RetryAttempts: config.GetEnvInt("WEBHOOK_RETRY_ATTEMPTS", defaultRetryAttempts),
		MaxInFlight:   config.GetEnvInt("WEBHOOK_MAX_IN_FLIGHT", defaultMaxInFlight),
	}
}

// Enabled reports whether a base URL is configured.
func (c *Config) Enabled() bool {
	return c.BaseURL != ""
}

// normalize clamps nonsensical values back to defaults.
func (c *Config) normalize() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeoutMS * time.Millisecond
	}

	if c.RetryAttempts <= 0 {
		c.RetryAttempts = defaultRetryAttempts
	}

	if c.MaxInFlight <= 0 {
		c.MaxInFlight = defaultMaxInFlight
	}
}
