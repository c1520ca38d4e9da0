package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/accountd/server/internal/db"
)

// RunMigrations runs goose Up over the embedded migration files.
func RunMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	goose.SetBaseFS(db.MigrationsFS)
	if err := goose.Up(database, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// TruncateAuthTables truncates auth-related tables for a clean test state.
func TruncateAuthTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE revoked_tokens, otps, users RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}
