package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migration is one schema step. Steps run in version order, each in its own
// transaction, and are recorded in schema_version.
type migration struct {
	version     int
	description string
	apply       func(ctx context.Context, tx *sql.Tx) error
}

// migrations is append-only.
var migrations = []migration{
	{
		version:     1,
		description: "runs, chunk outcomes, categories and relations",
		// schemaSQL creates the base tables before migrations run.
		apply: func(context.Context, *sql.Tx) error { return nil },
	},
	{
		version:     2,
		description: "oracle usage columns on runs",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			for _, col := range []string{"oracle_calls", "prompt_tokens", "completion_tokens"} {
				if err := addColumn(ctx, tx, "runs", col, "INTEGER DEFAULT 0"); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		version:     3,
		description: "term lookup indexes",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_relations_parent ON relations(run_id, parent);
				CREATE INDEX IF NOT EXISTS idx_relations_child ON relations(run_id, child);
				CREATE INDEX IF NOT EXISTS idx_category_terms_term ON category_terms(term);
			`)
			return err
		},
	},
}

// addColumn adds column to table unless it is already there.
func addColumn(ctx context.Context, tx *sql.Tx, table, column, decl string) error {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// Migrate applies every migration newer than the recorded schema version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		slog.Info("store: applying migration", "version", m.version, "description", m.description)
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			if err := m.apply(ctx, tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_version (version, description) VALUES (?, ?)",
				m.version, m.description)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}
