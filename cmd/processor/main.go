// Package main provides the supermarket product processing service.
//
// The service pulls raw scrape payloads from PostgreSQL, transforms them
// through per-shop transformers into the canonical product shape, and exposes
// the job lifecycle over an HTTP control surface.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/supermarket-io/processor/internal/aliasing"
	"github.com/supermarket-io/processor/internal/api"
	"github.com/supermarket-io/processor/internal/api/middleware"
	"github.com/supermarket-io/processor/internal/batch"
	"github.com/supermarket-io/processor/internal/config"
	"github.com/supermarket-io/processor/internal/job"
	"github.com/supermarket-io/processor/internal/monitor"
	"github.com/supermarket-io/processor/internal/storage"
	"github.com/supermarket-io/processor/internal/transform"
	"github.com/supermarket-io/processor/internal/webhook"
)

const name = "processor"

// activeCounter breaks the construction cycle between the manager (which
// takes its listeners up front) and the monitoring agent (which counts the
// manager's active jobs).
type activeCounter struct {
	manager *job.Manager
}

func (a *activeCounter) ActiveCount() int {
	if a.manager == nil {
		return 0
	}

	return a.manager.ActiveCount()
}

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s %s\n", name, api.Version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting processor service",
		slog.String("service", name),
		slog.String("version", api.Version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("request_timeout", serverConfig.RequestTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Rate limiter (graceful shutdown handled by server.shutdown())
	middlewareConfig := middleware.LoadConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("client_rps", middlewareConfig.ClientRPS),
		slog.Int("unauth_rps", middlewareConfig.UnAuthRPS),
	)

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.Connect(storageConfig, logger)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close() // Ensure connection closes on normal shutdown
	}()

	apiKeyStore := buildKeyStore(dbConn, logger)

	productStore := storage.NewProductStore(dbConn, storageConfig.OutputTarget, logger)
	jobStore := storage.NewJobStore(dbConn, logger)

	logger.Info("Stores initialized",
		slog.String("database_url", storageConfig.MaskDSN()),
		slog.String("output_target", string(storageConfig.OutputTarget)),
		slog.Int("pool_size", storageConfig.PoolSize),
	)

	registry := transform.New()
	runner := batch.NewProcessor(registry, productStore, jobStore, logger)

	webhookConfig := webhook.LoadConfig()
	dispatcher := webhook.NewDispatcher(webhookConfig, logger)

	if webhookConfig.Enabled() {
		logger.Info("Webhook dispatcher enabled", slog.String("base_url", webhookConfig.BaseURL))
	} else {
		logger.Warn("WEBHOOK_BASE_URL not configured - job events will not be dispatched")
	}

	monitorConfig := monitor.LoadConfig()
	monitorConfig.Version = api.Version

	counter := &activeCounter{}
	agent := monitor.NewAgent(monitorConfig, dbConn, jobStore, counter, dispatcher, logger)

	manager, err := job.NewManager(jobStore, runner, job.LoadConfig(), logger, dispatcher, agent)
	if err != nil {
		logger.Error("Failed to create job manager", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	counter.manager = manager

	defer func() {
		_ = manager.Close()
		_ = dispatcher.Close()
	}()

	agent.Start()

	defer func() {
		_ = agent.Close()
	}()

	aliasConfig, err := aliasing.LoadConfig(aliasing.ConfigPath())
	if err != nil {
		logger.Warn("Failed to load shop aliases, using built-ins", slog.String("error", err.Error()))
	}

	resolver := aliasing.NewResolver(aliasConfig)

	logger.Info("Shop registry ready",
		slog.Any("shops", registry.Shops()),
		slog.Int("alias_count", resolver.AliasCount()),
	)

	server := api.NewServer(serverConfig, &api.Dependencies{
		Jobs:        manager,
		Products:    productStore,
		Resolver:    resolver,
		Monitor:     agent,
		APIKeys:     apiKeyStore,
		RateLimiter: rateLimiter,
	})

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Processor service stopped")
}

// buildKeyStore picks the authentication backend. API_KEYS seeds an in-memory
// store for development; AUTH_ENABLED selects the persistent store backed by
// the api_keys table; neither disables authentication entirely.
func buildKeyStore(conn *storage.Connection, logger *slog.Logger) storage.APIKeyStore {
	if seed := config.GetEnvStr("API_KEYS", ""); seed != "" {
		store := storage.NewInMemoryKeyStore()

		count := seedMemoryKeys(store, seed, logger)
		logger.Info("In-memory API key store seeded",
			slog.Int("keys", count),
		)

		return store
	}

	if config.GetEnvBool("AUTH_ENABLED", false) {
		logger.Info("Persistent API key store enabled")

		return storage.NewPersistentKeyStore(conn, logger)
	}

	logger.Warn("Authentication disabled",
		slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
		slog.String("note", "Set API_KEYS or AUTH_ENABLED=true to enable API key authentication"),
	)

	return nil
}

// seedMemoryKeys parses API_KEYS as comma-separated client:key pairs and
// loads their hashes. Malformed entries are skipped with a warning so one
// typo does not take the whole service down.
func seedMemoryKeys(store *storage.InMemoryKeyStore, seed string, logger *slog.Logger) int {
	count := 0

	for _, entry := range config.ParseCommaSeparatedList(seed) {
		clientID, plaintext, found := strings.Cut(entry, ":")
		if !found || clientID == "" || plaintext == "" {
			logger.Warn("Skipping malformed API_KEYS entry", slog.String("entry", storage.MaskKey(entry)))

			continue
		}

		hash, err := storage.HashAPIKey(plaintext)
		if err != nil {
			logger.Warn("Failed to hash seeded API key", slog.String("client_id", clientID))

			continue
		}

		apiKey := &storage.APIKey{
			ID:          "seed-" + clientID,
			KeyHash:     hash,
			ClientID:    clientID,
			Name:        clientID,
			Permissions: []string{"jobs:read", "jobs:write", "products:read"},
			CreatedAt:   time.Now().UTC(),
			Active:      true,
		}

		if err := store.Add(context.Background(), apiKey); err != nil {
			logger.Warn("Failed to seed API key", slog.String("client_id", clientID))

			continue
		}

		count++
	}

	return count
}
