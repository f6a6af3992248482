// Package middleware provides HTTP middleware components for the processor API.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

const correlationIDBytes = 8

// correlationIDKey is the context key for the request correlation id.
type correlationIDKey struct{}

// CorrelationID tags every request with a correlation id. A caller-supplied
// X-Correlation-ID header is honored so the id can span the orchestrator, the
// API, and the webhook events a job emits; otherwise a fresh id is generated.
// The id is echoed on the response and stored in the request context.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Correlation-ID")
			if id == "" {
				id = newCorrelationID()
			}

			w.Header().Set("X-Correlation-ID", id)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation id from the request context,
// "unknown" when the middleware did not run.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}

	return "unknown"
}

func newCorrelationID() string {
	buf := make([]byte, correlationIDBytes)
	if _, err := rand.Read(buf); err != nil {
		// Ids only need to be unique enough to group log lines.
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}

	return hex.EncodeToString(buf)
}
