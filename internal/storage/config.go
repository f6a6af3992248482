// Package storage provides PostgreSQL-backed persistence for the processing
// engine: raw, staging, and processed product stores, the job and error
// stores, and API key storage for the control plane.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/supermarket-io/processor/internal/config"
)

const (
	defaultHost              = "localhost"
	defaultPort              = 5432
	defaultDatabase          = "processor"
	defaultUser              = "processor"
	defaultPoolSize          = 25
	defaultMaxIdleConns      = 5
	defaultConnectionTimeout = 10 * time.Second
	defaultIdleTimeout       = 10 * time.Minute
	defaultConnMaxLifetime   = 30 * time.Minute
	maxPortNumber            = 65535
)

// Sentinel errors for storage configuration validation.
var (
	// ErrEmptyHost is returned when the Postgres host is empty.
	ErrEmptyHost = errors.New("postgres host cannot be empty")

	// ErrEmptyDatabase is returned when the Postgres database name is empty.
	ErrEmptyDatabase = errors.New("postgres database cannot be empty")

	// ErrInvalidPoolSize is returned when the pool size is zero or negative.
	ErrInvalidPoolSize = errors.New("postgres pool size must be positive")

	// ErrInvalidPort is returned when the Postgres port is outside 1-65535.
	ErrInvalidPort = errors.New("invalid postgres port")
)

// OutputTarget selects which destinations a processed batch writes.
type OutputTarget string

// Output targets for PersistBatch.
const (
	OutputStaging   OutputTarget = "staging"
	OutputProcessed OutputTarget = "processed"
	OutputBoth      OutputTarget = "both"
)

// IsValid checks whether the target is one of the defined destinations.
func (t OutputTarget) IsValid() bool {
	switch t {
	case OutputStaging, OutputProcessed, OutputBoth:
		return true
	default:
		return false
	}
}

// WritesStaging reports whether staging rows are written under this target.
func (t OutputTarget) WritesStaging() bool {
	return t == OutputStaging || t == OutputBoth
}

// WritesProcessed reports whether processed rows are written under this target.
func (t OutputTarget) WritesProcessed() bool {
	return t == OutputProcessed || t == OutputBoth
}

// Config holds PostgreSQL connection configuration with production-ready defaults.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	password string // private so it never lands in logs via %+v
	SSL      bool

	PoolSize          int
	MaxIdleConns      int
	ConnectionTimeout time.Duration
	IdleTimeout       time.Duration
	ConnMaxLifetime   time.Duration

	// OutputTarget controls which destinations batch writes reach.
	OutputTarget OutputTarget
}

// LoadConfig loads PostgreSQL configuration from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Host:              config.GetEnvStr("POSTGRES_HOST", defaultHost),
		Port:              config.GetEnvInt("POSTGRES_PORT", defaultPort),
		Database:          config.GetEnvStr("POSTGRES_DB", defaultDatabase),
		User:              config.GetEnvStr("POSTGRES_USER", defaultUser),
		password:          config.GetEnvStr("POSTGRES_PASSWORD", ""),
		SSL:               config.GetEnvBool("POSTGRES_SSL", false),
		PoolSize:          config.GetEnvInt("POSTGRES_POOL_SIZE", defaultPoolSize),
		MaxIdleConns:      config.GetEnvInt("POSTGRES_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnectionTimeout: config.GetEnvDuration("POSTGRES_CONNECTION_TIMEOUT", defaultConnectionTimeout),
		IdleTimeout:       config.GetEnvDuration("POSTGRES_IDLE_TIMEOUT", defaultIdleTimeout),
		ConnMaxLifetime:   config.GetEnvDuration("POSTGRES_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		OutputTarget:      OutputTarget(config.GetEnvStr("OUTPUT_TARGET", string(OutputBoth))),
	}
}

// Validate checks if the PostgreSQL configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrEmptyHost
	}

	if c.Port <= 0 || c.Port > maxPortNumber {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPortNumber)
	}

	if strings.TrimSpace(c.Database) == "" {
		return ErrEmptyDatabase
	}

	if c.PoolSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidPoolSize, c.PoolSize)
	}

	if !c.OutputTarget.IsValid() {
		c.OutputTarget = OutputBoth
	}

	return nil
}

// SetPassword overrides the configured password. Used by tests that point a
// config at a throwaway container.
func (c *Config) SetPassword(password string) {
	c.password = password
}

// DSN builds the lib/pq connection URL from the configured parts.
func (c *Config) DSN() string {
	sslMode := "disable"
	if c.SSL {
		sslMode = "require"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}

	switch {
	case c.User != "" && c.password != "":
		u.User = url.UserPassword(c.User, c.password)
	case c.User != "":
		u.User = url.User(c.User)
	}

	q := u.Query()
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(int(c.ConnectionTimeout.Seconds())))
	u.RawQuery = q.Encode()

	return u.String()
}

// MaskDSN returns the connection URL with the password replaced, safe for logging.
func (c *Config) MaskDSN() string {
	if c.password == "" {
		return c.DSN()
	}

	masked := *c
	masked.password = "***"

	return masked.DSN()
}
