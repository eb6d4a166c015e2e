// Package migrations applies the finra.otc domain's own output-table
// schema, separately from the core substrate's migrations — a domain
// owns its output tables (spec §6) and migrates them under its own
// golang-migrate version table so the two never collide.
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

const migrationsTable = "marketdata_schema_migrations"

// Apply runs every pending up migration for the finra.otc output tables.
func Apply(db *sql.DB) error {
	m, closeFn, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply marketdata migrations: %w", err)
	}
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, func() error, error) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return nil, nil, fmt.Errorf("load embedded marketdata migrations: %w", err)
	}

	drv, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return nil, nil, fmt.Errorf("build marketdata migrator: %w", err)
	}
	return m, drv.Close, nil
}
