// Package api provides the HTTP control surface for the processor service.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/supermarket-io/processor/internal/config"
)

const (
	defaultPort             int   = 8080
	maxPort                 int   = 65535
	defaultHost                   = "0.0.0.0"
	defaultCORSMaxAge       int   = 86400
	defaultRequestTimeoutMS int   = 30000
	defaultShutdownTimeout        = 30 * time.Second
	defaultLogLevel               = slog.LevelInfo
	defaultMaxRequestSize   int64 = 10485760 // 10 MB, scrape payload batches are large
)

var (
	// ErrInvalidPort indicates the port number is outside valid range (1-65535).
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidRequestTimeout indicates the request timeout is zero or negative.
	ErrInvalidRequestTimeout = errors.New("request timeout must be positive")

	// ErrInvalidShutdownTimeout indicates the shutdown timeout is zero or negative.
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidMaxRequestSize indicates the max request size is zero or negative.
	ErrInvalidMaxRequestSize = errors.New("max request size must be positive")
)

type (
	// ServerConfig holds HTTP server configuration.
	// Pure configuration only - no runtime dependencies.
	ServerConfig struct {
		Port               int
		Host               string
		RequestTimeout     time.Duration
		ShutdownTimeout    time.Duration
		LogLevel           slog.Level
		MaxRequestSize     int64
		CORSAllowedOrigins []string
		CORSAllowedMethods []string
		CORSAllowedHeaders []string
		CORSMaxAge         int
	}

	// CORSConfig holds CORS configuration options.
	// This is defined here to keep CORS configuration centralized.
	CORSConfig struct {
		AllowedOrigins []string
		AllowedMethods []string
		AllowedHeaders []string
		MaxAge         int
	}
)

// LoadServerConfig loads server configuration from environment variables with sensible defaults.
// REQUEST_TIMEOUT is expressed in milliseconds and bounds both the read and write side.
func LoadServerConfig() *ServerConfig {
	requestTimeout := time.Duration(config.GetEnvInt("REQUEST_TIMEOUT", defaultRequestTimeoutMS)) * time.Millisecond

	return &ServerConfig{
		Port:            config.GetEnvInt("PORT", defaultPort),
		Host:            config.GetEnvStr("HOST", defaultHost),
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: config.GetEnvDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		LogLevel:        config.GetEnvLogLevel("LOG_LEVEL", defaultLogLevel),
		MaxRequestSize:  config.GetEnvInt64("MAX_REQUEST_SIZE", defaultMaxRequestSize),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(
			config.GetEnvStr("CORS_ALLOWED_ORIGINS", "*"),
		), // "*" is Development default - should be restricted in production
		CORSAllowedMethods: config.ParseCommaSeparatedList(
			config.GetEnvStr("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
		),
		CORSAllowedHeaders: config.ParseCommaSeparatedList(
			config.GetEnvStr(
				"CORS_ALLOWED_HEADERS",
				"Content-Type,Authorization,X-Correlation-ID,X-Api-Key",
			),
		),
		CORSMaxAge: config.GetEnvInt("CORS_MAX_AGE", defaultCORSMaxAge),
	}
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig converts ServerConfig CORS fields to the middleware CORS provider.
func (c *ServerConfig) ToCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// GetAllowedOrigins returns the allowed origins for CORS.
func (c *CORSConfig) GetAllowedOrigins() []string {
	return c.AllowedOrigins
}

// GetAllowedMethods returns the allowed methods for CORS.
func (c *CORSConfig) GetAllowedMethods() []string {
	return c.AllowedMethods
}

// GetAllowedHeaders returns the allowed headers for CORS.
func (c *CORSConfig) GetAllowedHeaders() []string {
	return c.AllowedHeaders
}

// GetMaxAge returns the max age for CORS preflight cache.
func (c *CORSConfig) GetMaxAge() int {
	return c.MaxAge
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidRequestTimeout, c.RequestTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidMaxRequestSize, c.MaxRequestSize)
	}

	return nil
}
