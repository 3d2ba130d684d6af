package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 1

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS obligations (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					merchant TEXT NOT NULL,
					amount TEXT NOT NULL,
					currency TEXT NOT NULL,
					due_date DATETIME,
					entity_type TEXT NOT NULL,
					category TEXT NOT NULL,
					auto_debit INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					billing_cycle TEXT,
					principal TEXT,
					interest TEXT,
					late_fee TEXT,
					first_seen_at DATETIME NOT NULL,
					last_updated_at DATETIME NOT NULL,
					schema_version INTEGER NOT NULL DEFAULT 1
				)`,
				`CREATE INDEX idx_obligations_user ON obligations(user_id)`,
				`CREATE INDEX idx_obligations_user_merchant ON obligations(user_id, merchant)`,

				`CREATE TABLE IF NOT EXISTS obligation_sources (
					obligation_id TEXT NOT NULL,
					email_id TEXT NOT NULL,
					PRIMARY KEY (obligation_id, email_id),
					FOREIGN KEY (obligation_id) REFERENCES obligations(id)
				)`,
				`CREATE INDEX idx_obligation_sources_email ON obligation_sources(email_id)`,

				`CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					started_at DATETIME NOT NULL,
					completed_at DATETIME,
					status TEXT NOT NULL,
					fetched INTEGER NOT NULL DEFAULT 0,
					normalized INTEGER NOT NULL DEFAULT 0,
					extracted INTEGER NOT NULL DEFAULT 0,
					validated INTEGER NOT NULL DEFAULT 0,
					classified INTEGER NOT NULL DEFAULT 0,
					deduplicated INTEGER NOT NULL DEFAULT 0,
					stored INTEGER NOT NULL DEFAULT 0,
					failed INTEGER NOT NULL DEFAULT 0,
					subscriptions INTEGER NOT NULL DEFAULT 0,
					bills INTEGER NOT NULL DEFAULT 0,
					loans INTEGER NOT NULL DEFAULT 0,
					total_amount TEXT NOT NULL DEFAULT '0',
					currency TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX idx_runs_user ON runs(user_id)`,

				`CREATE TABLE IF NOT EXISTS run_failures (
					run_id TEXT NOT NULL,
					source_id TEXT NOT NULL,
					stage TEXT NOT NULL,
					reason TEXT NOT NULL,
					FOREIGN KEY (run_id) REFERENCES runs(id)
				)`,
				`CREATE INDEX idx_run_failures_run ON run_failures(run_id)`,

				`CREATE TABLE IF NOT EXISTS run_obligations (
					run_id TEXT NOT NULL,
					obligation_id TEXT NOT NULL,
					PRIMARY KEY (run_id, obligation_id),
					FOREIGN KEY (run_id) REFERENCES runs(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies any pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
