package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	ID    int
	Name  string
	UpSQL string
}

func migrations() []migration {
	return []migration{
		{
			ID:   1,
			Name: "001_create_transmissions",
			UpSQL: `CREATE TABLE IF NOT EXISTS transmissions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				batch_id TEXT NOT NULL,
				session_uuid TEXT NOT NULL,
				events INTEGER NOT NULL,
				ok BOOLEAN NOT NULL,
				http_status INTEGER NOT NULL DEFAULT 0,
				status_text TEXT NOT NULL DEFAULT '',
				sent_at INTEGER NOT NULL
			)`,
		},
		{
			ID:    2,
			Name:  "002_index_sent_at",
			UpSQL: `CREATE INDEX IF NOT EXISTS idx_transmissions_sent_at ON transmissions (sent_at)`,
		},
	}
}

// migrate creates the migrations table and applies anything not yet applied.
func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations() {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE name = ?", m.Name).Scan(&count); err != nil {
			return fmt.Errorf("failed to check if migration %s is applied: %w", m.Name, err)
		}
		if count > 0 {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO migrations (id, name, applied_at) VALUES (?, ?, ?)",
		m.ID, m.Name, time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
