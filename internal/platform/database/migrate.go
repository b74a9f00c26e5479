package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

//go:embed schema_sqlite.sql
var sqliteSchema string

// Migrate brings the schema up to date. Postgres runs the versioned
// migrations; sqlite applies its idempotent schema.
func Migrate(ctx context.Context, cfg Config, db *sql.DB) error {
	switch cfg.Driver {
	case DriverPostgres:
		return migratePostgres(cfg.DSN)
	case DriverSQLite:
		_, err := db.ExecContext(ctx, sqliteSchema)
		return err
	}
	return fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

func migratePostgres(dsn string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migration init failed: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}
