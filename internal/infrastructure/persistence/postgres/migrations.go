package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

//go:embed migrations/*.sql
var embedMigrations embed.FS

const migrationsDir = "migrations"

// Migrate applies all pending migrations through goose over the pool.
func (c *Connection) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(c.Pool())
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%w: set dialect: %w", ErrMigrationFailed, err)
	}

	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	return nil
}

// MigrationVersion returns the current schema version.
func (c *Connection) MigrationVersion(ctx context.Context) (int64, error) {
	db := stdlib.OpenDBFromPool(c.Pool())
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}
