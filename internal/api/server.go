package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/supermarket-io/processor/internal/aliasing"
	"github.com/supermarket-io/processor/internal/api/middleware"
	"github.com/supermarket-io/processor/internal/job"
	"github.com/supermarket-io/processor/internal/monitor"
	"github.com/supermarket-io/processor/internal/storage"
)

// Version is the service version reported by /health and /version.
// Overridden at build time via -ldflags.
var Version = "v1.0.0"

type (
	// JobService is the slice of the job manager the API depends on.
	JobService interface {
		Shops() []string
		Create(ctx context.Context, params *job.CreateParams) (*job.Job, error)
		Start(ctx context.Context, id string) (*job.Job, error)
		Cancel(ctx context.Context, id, reason string) (*job.Job, error)
		Get(ctx context.Context, id string) (*job.Job, error)
		List(ctx context.Context, filter *job.Filter) ([]*job.Job, int, error)
		Errors(ctx context.Context, id string, limit, offset int) ([]*job.ProcessingError, int, error)
		Progress(ctx context.Context, id string) (*job.Progress, error)
		ActiveCount() int
		HealthCheck(ctx context.Context) error
	}

	// ProductCatalog exposes read access to processed products.
	ProductCatalog interface {
		ListProcessed(ctx context.Context, filter *storage.ProcessedFilter) ([]*storage.ProcessedProduct, int, error)
		GetProcessedByUnifiedID(ctx context.Context, unifiedID string) (*storage.ProcessedProduct, error)
	}

	// HealthReporter surfaces the monitoring agent's latest snapshot.
	HealthReporter interface {
		Latest() *monitor.Snapshot
	}

	// Dependencies are the runtime collaborators injected into the server.
	// Configuration (what) stays in ServerConfig; dependencies (how) live here.
	Dependencies struct {
		Jobs     JobService
		Products ProductCatalog
		Resolver *aliasing.Resolver
		Monitor  HealthReporter
		// APIKeys of nil disables authentication.
		APIKeys storage.APIKeyStore
		// RateLimiter of nil disables rate limiting.
		RateLimiter middleware.RateLimiter
	}
)

// Server represents the HTTP API server.
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	config      *ServerConfig
	startTime   time.Time
	jobs        JobService
	products    ProductCatalog
	resolver    *aliasing.Resolver
	monitor     HealthReporter
	apiKeyStore storage.APIKeyStore
	rateLimiter middleware.RateLimiter
}

// NewServer creates a new HTTP server instance with structured logging and
// the full middleware stack.
func NewServer(cfg *ServerConfig, deps *Dependencies) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	mux := http.NewServeMux()

	server := &Server{
		logger:      logger,
		config:      cfg,
		jobs:        deps.Jobs,
		products:    deps.Products,
		resolver:    deps.Resolver,
		monitor:     deps.Monitor,
		apiKeyStore: deps.APIKeys,
		rateLimiter: deps.RateLimiter,
	}

	server.setupRoutes(mux)

	if deps.APIKeys != nil { // pragma: allowlist secret
		logger.Info("API key authentication middleware enabled")
	} else {
		logger.Warn("APIKeyStore not configured - authentication middleware disabled")
	}

	if deps.RateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Middleware executes in the order listed (top-to-bottom):
	//   1. CorrelationID - generate correlation ID for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. Auth - identify client and set ClientContext (optional)
	//   4. RateLimit - block requests before expensive operations (optional)
	//   5. RequestLogger - log only legitimate requests (not rate-limited spam)
	//   6. CORS - lightweight header manipulation
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithAuth(deps.APIKeys, logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	return server
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	// Record server start time for uptime calculation
	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting processor API server",
			slog.String("address", s.config.Address()),
			slog.String("version", Version),
			slog.Duration("request_timeout", s.config.RequestTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server and closes injected resources
// that hold connections or background goroutines.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.closeIfCloser("API key store", s.apiKeyStore)
	s.closeIfCloser("rate limiter", s.rateLimiter)

	s.logger.Info("Server shutdown completed successfully")

	return nil
}

// closeIfCloser closes a dependency when it carries background resources.
func (s *Server) closeIfCloser(name string, dep any) {
	if dep == nil {
		return
	}

	closer, ok := dep.(io.Closer)
	if !ok {
		return
	}

	if err := closer.Close(); err != nil {
		s.logger.Error("Failed to close "+name, slog.String("error", err.Error()))

		return
	}

	s.logger.Info("Closed " + name)
}
