// Package middleware provides HTTP middleware components for the processor API.
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// RequestLogger emits one structured log line per completed request. The line
// carries the correlation id and, for authenticated callers, the client id, so
// a job trigger can be traced from orchestrator to pipeline logs.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", rw.statusCode),
				slog.Int("bytes", rw.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
			}

			if client, ok := GetClientContext(r.Context()); ok {
				attrs = append(attrs, slog.String("client_id", client.ClientID))
			}

			logger.Info("HTTP request completed", attrs...)
		})
	}
}

// responseWriter captures the status code and body size for the log line.
type responseWriter struct {
	http.ResponseWriter

	statusCode int
	bytes      int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(p)
	rw.bytes += n

	return n, err
}
