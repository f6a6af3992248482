package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/supermarket-io/processor/internal/api/middleware"
	"github.com/supermarket-io/processor/internal/monitor"
)

const (
	healthCheckTimeout = 2 * time.Second
	expectedURLParts   = 2
)

type (
	// VersionInfo represents the version endpoint response structure.
	VersionInfo struct {
		Version     string `json:"version"`
		ServiceName string `json:"service_name"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string            `json:"status"`
		ServiceName string            `json:"service_name"`
		Version     string            `json:"version"`
		Uptime      string            `json:"uptime,omitempty"`
		ActiveJobs  int               `json:"active_jobs"`
		Snapshot    *monitor.Snapshot `json:"snapshot,omitempty"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Path    string           // The URL path for this route (e.g., "GET /ping")
		Handler http.HandlerFunc // The HTTP handler function for this route
	}
)

// setupRoutes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public endpoints: probes plus the n8n trigger, which authenticates
	// upstream in the orchestrator.
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},       // K8s liveness probe
		Route{"GET /ready", s.handleReady},     // K8s readiness probe
		Route{"GET /health", s.handleHealth},   // Health summary with monitoring snapshot
		Route{"GET /version", s.handleVersion}, // Build version
		Route{"POST /webhook/n8n", s.handleWebhookTrigger},
		Route{"/", s.handleNotFound}, // Catch-all handler for 404 responses
	)

	// Job lifecycle endpoints
	mux.HandleFunc("POST /jobs", s.handleCreateJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /jobs/{id}/start", s.handleStartJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("GET /jobs/{id}/progress", s.handleJobProgress)
	mux.HandleFunc("GET /jobs/{id}/errors", s.handleJobErrors)

	// Processed product endpoints
	mux.HandleFunc("GET /products", s.handleListProducts)
	mux.HandleFunc("GET /products/{unified_id}", s.handleGetProduct)

	// One-shot create-and-start
	mux.HandleFunc("POST /process/{shopType}", s.handleProcessShop)
}

// registerPublicRoutes registers HTTP routes that bypass authentication and rate limiting.
// This is a convenience method that:
//  1. Registers the route handler with the HTTP mux
//  2. Automatically registers the path as a public endpoint (bypasses auth middleware)
//
// Security Warning: Never register business logic endpoints as public routes,
// with the single deliberate exception of the n8n trigger webhook.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		// Strip method prefix for public endpoint bypass registration.
		// Go 1.22+ method-based routing uses "GET /path" format but
		// r.URL.Path is just "/path".
		path := route.Path

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("path", path))

			continue
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	_, err := w.Write([]byte("pong"))
	if err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleVersion returns the service name and build version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	WriteResponse(w, r, s.logger, http.StatusOK, &VersionInfo{
		Version:     Version,
		ServiceName: "supermarket-processor",
	})
}

// handleReady responds to Kubernetes readiness probes.
//
// Response codes:
//   - 200 OK: database reachable and the job manager accepts work
//   - 503 Service Unavailable: a storage dependency is unhealthy
//
// The check delegates to the job manager's HealthCheck, which pings the
// underlying job store and therefore the database pool.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if s.jobs == nil {
		s.logger.Warn("Job manager not configured - readiness check disabled",
			slog.String("correlation_id", correlationID),
		)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)

		if _, err := w.Write([]byte("ready")); err != nil {
			s.logger.Error("Failed to write ready response",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
		}

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.jobs.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("storage unavailable"))

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("ready")); err != nil {
		s.logger.Error("Failed to write ready response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealth returns detailed health status information, including the
// latest monitoring snapshot when the agent is wired in.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		duration := time.Since(s.startTime)
		uptime = duration.Round(time.Second).String()
	}

	health := &HealthStatus{
		Status:      monitor.StatusHealthy,
		ServiceName: "supermarket-processor",
		Version:     Version,
		Uptime:      uptime,
	}

	if s.jobs != nil {
		health.ActiveJobs = s.jobs.ActiveCount()
	}

	if s.monitor != nil {
		if snapshot := s.monitor.Latest(); snapshot != nil {
			health.Status = snapshot.Status
			health.Snapshot = snapshot
		}
	}

	WriteResponse(w, r, s.logger, http.StatusOK, health)
}

// handleNotFound returns envelope-wrapped 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("the requested resource was not found"))
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
// This allows charset parameters (e.g., "application/json; charset=utf-8").
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
