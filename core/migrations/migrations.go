// Package migrations applies the execution substrate's forward-only
// schema to a Postgres database using golang-migrate, embedding the SQL
// files directly into the binary so the binary needs no migrations
// directory on disk at deploy time.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// Apply runs every pending up migration against db. It is idempotent:
// migrate.ErrNoChange (nothing left to apply) is swallowed, not returned.
func Apply(db *sql.DB) error {
	m, closeFn, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Down rolls back every applied migration. Used by test fixtures that
// need a clean schema between runs; never invoked in production.
func Down(db *sql.DB) error {
	m, closeFn, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, func() error, error) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return nil, nil, fmt.Errorf("load embedded migrations: %w", err)
	}

	drv, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return nil, nil, fmt.Errorf("build migrator: %w", err)
	}
	return m, drv.Close, nil
}
