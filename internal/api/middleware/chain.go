// Package middleware provides HTTP middleware components for the processor API.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/supermarket-io/processor/internal/storage"
)

// Option wraps a handler with one middleware layer.
type Option func(http.Handler) http.Handler

// Apply wraps the handler with the given options. The first option becomes
// the outermost layer, so the listing order in the caller reads top-down:
//
//	handler := middleware.Apply(mux,
//	    middleware.WithCorrelationID(),
//	    middleware.WithRecovery(logger),
//	    middleware.WithAuth(keys, logger),
//	    middleware.WithRateLimit(limiter, logger),
//	    middleware.WithRequestLogger(logger),
//	    middleware.WithCORS(corsConfig),
//	)
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// noop leaves the handler unwrapped, for layers disabled by configuration.
func noop(next http.Handler) http.Handler { return next }

// WithCorrelationID adds correlation id tagging.
func WithCorrelationID() Option {
	return CorrelationID()
}

// WithRecovery adds panic recovery.
func WithRecovery(logger *slog.Logger) Option {
	return Recovery(logger)
}

// WithAuth adds API key authentication. A nil store disables the layer;
// the entrypoint decides whether running without auth is acceptable.
func WithAuth(store storage.APIKeyStore, logger *slog.Logger) Option {
	if store == nil {
		return noop
	}

	return Authenticate(store, logger)
}

// WithRateLimit adds rate limiting. A nil limiter disables the layer.
func WithRateLimit(limiter RateLimiter, logger *slog.Logger) Option {
	if limiter == nil {
		return noop
	}

	return RateLimit(limiter, logger)
}

// WithRequestLogger adds per-request structured logging.
func WithRequestLogger(logger *slog.Logger) Option {
	return RequestLogger(logger)
}

// WithCORS adds cross-origin handling.
func WithCORS(config CORSConfig) Option {
	return CORS(config)
}
