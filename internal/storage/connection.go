package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// ErrNilConfig is returned when a connection is constructed without configuration.
var ErrNilConfig = errors.New("storage config cannot be nil")

// Connection wraps the database pool and owns its lifecycle. All stores in
// this package operate over a shared Connection.
type Connection struct {
	db     *sql.DB
	config *Config
	logger *slog.Logger
}

// PoolStats is a snapshot of the connection pool, consumed by the monitoring
// agent and the readiness endpoint.
type PoolStats struct {
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration"`
	MaxOpen         int           `json:"max_open"`
}

// Connect opens the PostgreSQL pool described by the config and verifies it
// with a ping bounded by the configured connection timeout.
func Connect(config *Config, logger *slog.Logger) (*Connection, error) {
	if config == nil {
		return nil, ErrNilConfig
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.PoolSize)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.IdleTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database at %s: %w", config.MaskDSN(), err)
	}

	logger.Info("connected to postgres",
		slog.String("dsn", config.MaskDSN()),
		slog.Int("pool_size", config.PoolSize),
	)

	return &Connection{db: db, config: config, logger: logger}, nil
}

// NewConnectionFromDB wraps an already-open pool. Used by integration tests
// that receive their pool from a container helper.
func NewConnectionFromDB(db *sql.DB, logger *slog.Logger) *Connection {
	return &Connection{db: db, config: &Config{OutputTarget: OutputBoth}, logger: logger}
}

// DB exposes the underlying pool for stores in this package and for the
// migration runner.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Config returns the configuration the connection was opened with.
func (c *Connection) Config() *Config {
	return c.config
}

// HealthCheck verifies the database is reachable and can start a transaction.
// A ping alone can succeed against a pool whose server is gone, so a
// begin/rollback round trip is included.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database transaction probe failed: %w", err)
	}

	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("database rollback probe failed: %w", err)
	}

	return nil
}

// Stats returns a snapshot of the connection pool.
func (c *Connection) Stats() PoolStats {
	s := c.db.Stats()

	return PoolStats{
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
		WaitCount:       s.WaitCount,
		WaitDuration:    s.WaitDuration,
		MaxOpen:         s.MaxOpenConnections,
	}
}

// Close shuts the pool down.
func (c *Connection) Close() error {
	c.logger.Info("closing postgres connection pool")

	return c.db.Close()
}

// isConnectionError classifies errors that indicate the database itself is
// unreachable, as opposed to a constraint or data error. Used by the batch
// adapter to decide between per-row failure and fatal escalation.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08: connection exceptions. Class 57: operator intervention
		// (shutdown, crash).
		return pqErr.Code.Class() == "08" || pqErr.Code.Class() == "57"
	}

	return false
}

// IsConnectionError reports whether err indicates a lost or unreachable
// database rather than a data-level failure.
func IsConnectionError(err error) bool {
	return isConnectionError(err)
}
