package config

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file source for test migrations
)

const containerStartupTimeout = 120 * time.Second

// TestDatabase bundles the container and connection an integration test
// needs to clean up.
type TestDatabase struct {
	Container  *postgres.PostgresContainer
	Connection *sql.DB
}

// SetupTestDatabase starts a PostgreSQL container with the full schema
// applied. Callers skip in short mode and terminate via t.Cleanup:
//
//	testDB := config.SetupTestDatabase(ctx, t)
//	t.Cleanup(func() {
//	    _ = testDB.Connection.Close()
//	    _ = testcontainers.TerminateContainer(testDB.Container)
//	})
func SetupTestDatabase(ctx context.Context, t *testing.T) *TestDatabase {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("processor_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			// The log line appears twice: once during init, once for real.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(containerStartupTimeout),
		),
	)
	require.NoError(t, err, "start postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "postgres connection string")

	conn, err := sql.Open("postgres", connStr)
	require.NoError(t, err, "open test database")

	if err := RunTestMigrations(conn); err != nil {
		_ = conn.Close()
		_ = testcontainers.TerminateContainer(container)

		t.Fatalf("apply test migrations: %v", err)
	}

	return &TestDatabase{
		Container:  container,
		Connection: conn,
	}
}

// RunTestMigrations applies the real migration files against a test
// database. The file source points at ../../migrations, which resolves from
// every internal/* and cmd/* package since they sit at the same depth.
func RunTestMigrations(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// TestKafka bundles the broker container and its advertised listeners.
type TestKafka struct {
	Container *tckafka.KafkaContainer
	Brokers   []string
}

// SetupTestKafka starts a single-node Kafka broker for consumer tests.
// Cleanup follows the SetupTestDatabase convention.
func SetupTestKafka(ctx context.Context, t *testing.T) *TestKafka {
	t.Helper()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("processor-test"),
	)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "kafka broker addresses")
	require.NotEmpty(t, brokers, "kafka broker addresses empty")

	return &TestKafka{
		Container: container,
		Brokers:   brokers,
	}
}
