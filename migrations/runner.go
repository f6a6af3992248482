package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// MigrationRunner is the command surface main dispatches on.
type MigrationRunner interface {
	// Up applies all pending migrations.
	Up() error

	// Down rolls back the most recent migration.
	Down() error

	// Status reports the current version, dirty flag, and pending count.
	Status() error

	// Version reports the current version.
	Version() error

	// Drop removes every table. Destructive; main gates it behind a prompt.
	Drop() error

	// Close releases the source and database handles.
	Close() error
}

// Runner drives golang-migrate over the embedded catalog.
type Runner struct {
	config  *Config
	catalog *Catalog
	migrate *migrate.Migrate
	db      *sql.DB
}

var _ MigrationRunner = (*Runner)(nil)

// migrateLogger routes golang-migrate output through the standard logger.
type migrateLogger struct{}

var _ migrate.Logger = (*migrateLogger)(nil)

func (l *migrateLogger) Printf(format string, v ...any) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return true
}

// NewMigrationRunner validates the embedded catalog, connects to the
// database, and wires the iofs source into golang-migrate.
func NewMigrationRunner(config *Config) (*Runner, error) {
	log.Printf("Migration runner starting: %s", config.String())

	catalog := NewCatalog(nil)
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("embedded migration validation: %w", err)
	}

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: config.MigrationTable,
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	source, err := iofs.New(catalog.FS(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create embedded source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{}

	return &Runner{
		config:  config,
		catalog: catalog,
		migrate: m,
		db:      db,
	}, nil
}

// revalidate re-checks the catalog before any state-changing operation; the
// pinned checksums from construction catch files modified since startup.
func (r *Runner) revalidate() error {
	if err := r.catalog.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation: %w", err)
	}

	return nil
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	if err := r.revalidate(); err != nil {
		return err
	}

	err := r.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("Schema already up to date")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	log.Println("All pending migrations applied")

	return nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down() error {
	if err := r.revalidate(); err != nil {
		return err
	}

	err := r.migrate.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("Nothing to roll back")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}

	log.Println("Rolled back one migration")

	return nil
}

// Status reports the applied version against what this binary carries.
func (r *Runner) Status() error {
	version, dirty, err := r.currentVersion()
	if err != nil {
		return err
	}

	available := r.catalog.MaxSequence()

	switch {
	case dirty:
		log.Printf("Schema version %d is dirty and needs manual intervention", version)
	case version == 0:
		log.Printf("No migrations applied yet; this binary carries %d", available)
	case version < available:
		log.Printf("Schema at version %d; %d migration(s) pending (binary carries %d)",
			version, available-version, available)
	case version == available:
		log.Printf("Schema at version %d, up to date", version)
	default:
		log.Printf("Schema at version %d is newer than this binary (carries %d); update the migrator",
			version, available)
	}

	return nil
}

// Version reports the current schema version.
func (r *Runner) Version() error {
	version, dirty, err := r.currentVersion()
	if err != nil {
		return err
	}

	if version == 0 {
		log.Println("Current version: none applied")

		return nil
	}

	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}

	log.Printf("Current version: %d%s", version, suffix)

	return nil
}

// currentVersion folds migrate's nil-version error into version 0.
func (r *Runner) currentVersion() (int, bool, error) {
	version, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}

	return int(version), dirty, nil //nolint:gosec // sequence numbers are small
}

// Drop removes every table in the database.
func (r *Runner) Drop() error {
	if err := r.revalidate(); err != nil {
		return err
	}

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop: %w", err)
	}

	log.Println("All tables dropped")

	return nil
}

// Close releases the migrate source and the database connection.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("close source: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("close migrate database: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	return errors.Join(errs...)
}
