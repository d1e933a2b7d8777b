package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; user_version records how many ran.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		opened_at_ms INTEGER NOT NULL,
		closed_at_ms INTEGER NULL,
		close_reason TEXT NULL
	);
	CREATE TABLE IF NOT EXISTS state_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at_ms INTEGER NOT NULL,
		state TEXT NOT NULL,
		session_id TEXT NULL,
		gap_ms INTEGER NOT NULL DEFAULT -1
	);
	CREATE INDEX IF NOT EXISTS idx_state_events_at ON state_events(at_ms);`,
	`ALTER TABLE state_events ADD COLUMN error TEXT NULL;
	CREATE INDEX IF NOT EXISTS idx_sessions_opened ON sessions(opened_at_ms);`,
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("database schema v%d is newer than supported v%d", current, len(migrations))
	}

	for v := current; v < len(migrations); v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", v+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bump schema version to v%d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", v+1, err)
		}
	}

	return nil
}
