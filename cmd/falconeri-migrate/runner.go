package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type (
	// MigrationRunner is the set of operations the falconeri-migrate CLI
	// exposes over the coordination core's schema.
	MigrationRunner interface {
		Up() error
		Down() error
		Status() error
		Version() error
		Drop() error
		Close() error
	}

	// Runner implements MigrationRunner using golang-migrate against the
	// embedded Falconeri schema migrations.
	Runner struct {
		config            *Config
		migrate           *migrate.Migrate
		db                *sql.DB
		embeddedMigration *EmbeddedMigration
	}

	migrateLogger struct{}
)

var (
	_ migrate.Logger = (*migrateLogger)(nil)
	_ io.Writer      = (*migrateLogger)(nil)
)

// NewMigrationRunner opens a database connection, validates the embedded
// migrations, and builds a migrate.Migrate instance over them.
func NewMigrationRunner(cfg *Config) (*Runner, error) {
	log.Printf("initializing migration runner with config: %s", cfg.String())

	embeddedMigration := NewEmbeddedMigration(nil)

	log.Println("validating embedded migrations at startup")

	if err := embeddedMigration.ValidateEmbeddedMigrations(); err != nil {
		return nil, fmt.Errorf("embedded migration validation failed: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.MigrationTable})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(embeddedMigration.GetEmbeddedMigrations(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{}

	return &Runner{
		config:            cfg,
		migrate:           m,
		db:                db,
		embeddedMigration: embeddedMigration,
	}, nil
}

// Up applies every pending migration.
func (r *Runner) Up() error {
	if err := r.embeddedMigration.ValidateEmbeddedMigrations(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	err := r.migrate.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("no new migrations to apply")
	} else {
		log.Println("all migrations applied successfully")
	}

	return nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down() error {
	if err := r.embeddedMigration.ValidateEmbeddedMigrations(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	err := r.migrate.Steps(-1)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("no migrations to roll back")
	} else {
		log.Println("last migration rolled back successfully")
	}

	return nil
}

// Status logs the current migration version and schema compatibility.
func (r *Runner) Status() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("migration status: no migrations applied yet")
			r.showSchemaCompatibility(0)

			return nil
		}

		return fmt.Errorf("get migration version: %w", err)
	}

	status := "clean"
	if dirty {
		status = "dirty (needs manual intervention)"
	}

	log.Printf("migration status: version %d (%s)", ver, status)
	r.showSchemaCompatibility(int(ver)) //nolint:gosec // version numbers fit comfortably in an int

	return nil
}

// Version logs the current migration version.
func (r *Runner) Version() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("current version: no migrations applied")
			r.showSchemaCompatibility(0)

			return nil
		}

		return fmt.Errorf("get migration version: %w", err)
	}

	dirtyNote := ""
	if dirty {
		dirtyNote = " (dirty)"
	}

	log.Printf("current version: %d%s", ver, dirtyNote)
	r.showSchemaCompatibility(int(ver)) //nolint:gosec // version numbers fit comfortably in an int

	return nil
}

// Drop destroys every table the migrations created.
func (r *Runner) Drop() error {
	if err := r.embeddedMigration.ValidateEmbeddedMigrations(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	log.Println("dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop operation failed: %w", err)
	}

	log.Println("all tables dropped successfully")

	return nil
}

// Close releases the migrate source/database handles.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("source close error: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database connection close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (r *Runner) showSchemaCompatibility(currentVersion int) {
	maxVersion := r.getMaxEmbeddedSchemaVersion()

	log.Printf("schema compatibility: database v%03d, migrator supports v%03d", currentVersion, maxVersion)

	switch {
	case currentVersion == maxVersion:
		log.Printf("status: up to date")
	case currentVersion < maxVersion:
		log.Printf("status: %d migration(s) available", maxVersion-currentVersion)
	default:
		log.Printf("status: database schema newer than this migrator supports")
	}
}

func (r *Runner) getMaxEmbeddedSchemaVersion() int {
	files, err := r.embeddedMigration.ListEmbeddedMigrations()
	if err != nil {
		return 0
	}

	maxSequence := 0

	for _, filename := range files {
		if migration, err := r.embeddedMigration.parseMigrationFilename(filename); err == nil && migration.Sequence > maxSequence {
			maxSequence = migration.Sequence
		}
	}

	return maxSequence
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[MIGRATE] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return true
}

func (l *migrateLogger) Write(p []byte) (int, error) {
	log.Printf("[MIGRATE] %s", string(p))

	return len(p), nil
}
