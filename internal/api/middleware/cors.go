// Package middleware provides HTTP middleware components for the processor API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig is satisfied by the api package's server configuration; the
// interface keeps this package free of a dependency on internal/api.
type CORSConfig interface {
	GetAllowedOrigins() []string
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
	GetMaxAge() int
}

// CORS handles cross-origin requests, answering preflights directly.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := w.Header()

			if origin := allowedOrigin(r, config.GetAllowedOrigins()); origin != "" {
				header.Set("Access-Control-Allow-Origin", origin)
			}

			if methods := config.GetAllowedMethods(); len(methods) > 0 {
				header.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
			}

			if headers := config.GetAllowedHeaders(); len(headers) > 0 {
				header.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
			}

			if maxAge := config.GetMaxAge(); maxAge > 0 {
				header.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allowedOrigin picks the origin header value: "*" passes everything through,
// otherwise the request origin must match the allow list exactly.
func allowedOrigin(r *http.Request, allowed []string) string {
	if len(allowed) == 0 {
		return ""
	}

	if len(allowed) == 1 && allowed[0] == "*" {
		return "*"
	}

	origin := r.Header.Get("Origin")
	for _, candidate := range allowed {
		if origin == candidate {
			return origin
		}
	}

	return ""
}
