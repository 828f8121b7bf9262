package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var migrations embed.FS

// Migrator database migrator backed by the embedded SQL files
type Migrator struct {
	db *sql.DB
	m  *migrate.Migrate
}

// NewMigrator creates a migrator for the given connection
func NewMigrator(db *sql.DB) (*Migrator, error) {
	sourceDriver, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{
		db: db,
		m:  m,
	}, nil
}

// Up applies all pending migrations
func (migrator *Migrator) Up() error {
	if err := migrator.m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to migrate up: %w", err)
	}
	return nil
}

// Down rolls back all migrations
func (migrator *Migrator) Down() error {
	if err := migrator.m.Down(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to migrate down: %w", err)
	}
	return nil
}

// Steps applies n migrations (negative rolls back)
func (migrator *Migrator) Steps(n int) error {
	if err := migrator.m.Steps(n); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to migrate steps: %w", err)
	}
	return nil
}

// Version returns the current migration version
func (migrator *Migrator) Version() (uint, bool, error) {
	version, dirty, err := migrator.m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the source and database drivers
func (migrator *Migrator) Close() error {
	sourceErr, dbErr := migrator.m.Close()
	if sourceErr != nil {
		return sourceErr
	}
	return dbErr
}
