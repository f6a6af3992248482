// Package main provides the scraper feed ingester.
//
// The ingester consumes scraped product messages from Kafka and lands them
// in the raw product table, where processing jobs later pick them up. Raw
// inserts are append-only and tolerate replays, so offsets are committed
// only after the database write (at-least-once delivery).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/segmentio/kafka-go"

	"github.com/supermarket-io/processor/internal/aliasing"
	"github.com/supermarket-io/processor/internal/api"
	"github.com/supermarket-io/processor/internal/config"
	"github.com/supermarket-io/processor/internal/storage"
)

const name = "ingester"

const (
	defaultTopic         = "scraped-products"
	defaultGroupID       = "processor-ingester"
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
)

// scrapeMessage is one Kafka message produced by a scraper run.
type scrapeMessage struct {
	ShopType  string         `json:"shop_type"`
	JobID     string         `json:"job_id"`
	ScrapedAt time.Time      `json:"scraped_at"`
	Payload   map[string]any `json:"payload"`
}

// ingesterConfig holds the consumer configuration.
type ingesterConfig struct {
	Brokers       []string
	Topic         string
	GroupID       string
	BatchSize     int
	FlushInterval time.Duration
	LogLevel      slog.Level
}

func loadIngesterConfig() *ingesterConfig {
	return &ingesterConfig{
		Brokers:       config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", "localhost:9092")),
		Topic:         config.GetEnvStr("KAFKA_TOPIC", defaultTopic),
		GroupID:       config.GetEnvStr("KAFKA_GROUP_ID", defaultGroupID),
		BatchSize:     config.GetEnvInt("INGEST_BATCH_SIZE", defaultBatchSize),
		FlushInterval: config.GetEnvDuration("INGEST_FLUSH_INTERVAL", defaultFlushInterval),
		LogLevel:      config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// rawWriter is the slice of the product store the ingester needs.
type rawWriter interface {
	InsertRaw(ctx context.Context, shopType, scrapeID string, payloads []map[string]any) (int, error)
}

// messageReader is the slice of kafka.Reader the consumer loop needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s %s\n", name, api.Version)
		os.Exit(0)
	}

	cfg := loadIngesterConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("Starting ingester",
		slog.String("service", name),
		slog.String("version", api.Version),
		slog.Any("brokers", cfg.Brokers),
		slog.String("topic", cfg.Topic),
		slog.String("group_id", cfg.GroupID),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Duration("flush_interval", cfg.FlushInterval),
	)

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.Connect(storageConfig, logger)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	productStore := storage.NewProductStore(dbConn, storageConfig.OutputTarget, logger)

	aliasConfig, err := aliasing.LoadConfig(aliasing.ConfigPath())
	if err != nil {
		logger.Warn("Failed to load shop aliases, using built-ins", slog.String("error", err.Error()))
	}

	resolver := aliasing.NewResolver(aliasConfig)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	ctx, cancel := context.WithCancel(context.Background())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-stop
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	consumer := newConsumer(cfg, reader, productStore, resolver, logger)

	runErr := consumer.run(ctx)

	if err := reader.Close(); err != nil {
		logger.Error("Failed to close Kafka reader", slog.String("error", err.Error()))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("Consumer stopped with error", slog.String("error", runErr.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	logger.Info("Ingester stopped")
}

// pendingBatch accumulates payloads for one (shop type, scrape id) pair
// between flushes.
type pendingBatch struct {
	shopType string
	scrapeID string
	payloads []map[string]any
}

// consumer owns the fetch, accumulate and flush loop.
type consumer struct {
	cfg      *ingesterConfig
	reader   messageReader
	store    rawWriter
	resolver *aliasing.Resolver
	logger   *slog.Logger

	batches  map[string]*pendingBatch
	messages []kafka.Message
	total    int
}

func newConsumer(
	cfg *ingesterConfig,
	reader messageReader,
	store rawWriter,
	resolver *aliasing.Resolver,
	logger *slog.Logger,
) *consumer {
	return &consumer{
		cfg:      cfg,
		reader:   reader,
		store:    store,
		resolver: resolver,
		logger:   logger,
		batches:  make(map[string]*pendingBatch),
	}
}

// run consumes until the context is cancelled, flushing accumulated rows
// whenever the batch size or the linger interval is reached. A final flush
// drains whatever is pending before returning.
func (c *consumer) run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	fetched := make(chan kafka.Message)
	fetchErr := make(chan error, 1)

	go func() {
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				fetchErr <- err

				return
			}

			select {
			case fetched <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case msg := <-fetched:
			c.accumulate(msg)

			if c.total >= c.cfg.BatchSize {
				if err := c.flush(ctx); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := c.flush(ctx); err != nil {
				return err
			}
		case err := <-fetchErr:
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return c.finalFlush()
			}

			return err
		case <-ctx.Done():
			return c.finalFlush()
		}
	}
}

// accumulate decodes one message into its pending batch. Undecodable
// messages are logged and scheduled for commit; they would never succeed
// on redelivery either.
func (c *consumer) accumulate(msg kafka.Message) {
	var scrape scrapeMessage
	if err := json.Unmarshal(msg.Value, &scrape); err != nil {
		c.logger.Warn("Dropping undecodable message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)

		c.messages = append(c.messages, msg)

		return
	}

	shopType := c.resolver.Resolve(scrape.ShopType)
	if shopType == "" || scrape.Payload == nil {
		c.logger.Warn("Dropping message without shop type or payload",
			slog.Int64("offset", msg.Offset),
		)

		c.messages = append(c.messages, msg)

		return
	}

	key := shopType + "\x00" + scrape.JobID

	batch, ok := c.batches[key]
	if !ok {
		batch = &pendingBatch{shopType: shopType, scrapeID: scrape.JobID}
		c.batches[key] = batch
	}

	batch.payloads = append(batch.payloads, scrape.Payload)
	c.messages = append(c.messages, msg)
	c.total++
}

// flush writes all pending batches, then commits their offsets. A write
// failure leaves offsets uncommitted so the group redelivers the rows.
func (c *consumer) flush(ctx context.Context) error {
	if len(c.messages) == 0 {
		return nil
	}

	for key, batch := range c.batches {
		inserted, err := c.store.InsertRaw(ctx, batch.shopType, batch.scrapeID, batch.payloads)
		if err != nil {
			return err
		}

		c.logger.Info("Raw products ingested",
			slog.String("shop_type", batch.shopType),
			slog.String("scrape_id", batch.scrapeID),
			slog.Int("count", inserted),
		)

		delete(c.batches, key)
	}

	if err := c.reader.CommitMessages(ctx, c.messages...); err != nil {
		return err
	}

	c.messages = nil
	c.total = 0

	return nil
}

// finalFlush drains pending rows with a fresh context once the consumer's
// own context is gone.
func (c *consumer) finalFlush() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return c.flush(ctx)
}
