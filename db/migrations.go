package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// Migration is one schema step. Up runs inside the transaction that also
// records the version, so a failed step leaves no trace.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Populated by the migration_NNN_*.go files.
var migrations []Migration

// RegisterMigration adds a migration to the list
func RegisterMigration(m Migration) {
	migrations = append(migrations, m)
}

const schemaVersionTable = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL,
		description TEXT
	)`

// runMigrations applies every registered migration newer than the file's
// schema version, in version order.
func runMigrations(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := schemaVersion(ctx, conn)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	pending := slices.Clone(migrations)
	slices.SortFunc(pending, func(a, b Migration) int { return a.Version - b.Version })

	for _, m := range pending {
		if m.Version <= current {
			continue
		}
		logger.Info().
			Int("version", m.Version).
			Str("description", m.Description).
			Msg("applying migration")

		if err := applyMigration(ctx, conn, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sql.DB, m Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, NowMs(), m.Description)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func schemaVersion(ctx context.Context, q Querier) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

// CurrentVersion returns the current database schema version
func (d *DB) CurrentVersion() (int, error) {
	return schemaVersion(context.Background(), d.conn)
}
