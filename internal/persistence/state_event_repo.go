package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

type StateEventRepo struct {
	db *sql.DB
}

func NewStateEventRepo(db *sql.DB) *StateEventRepo {
	return &StateEventRepo{db: db}
}

func (r *StateEventRepo) Insert(ctx context.Context, e StateEvent) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO state_events(at_ms, state, session_id, gap_ms, error)
		VALUES(?, ?, ?, ?, ?)
	`, storedMillis(e.At), e.State, optionalText(e.SessionID), e.GapMS, optionalText(e.Error))
	if err != nil {
		return 0, fmt.Errorf("insert state event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get state event id: %w", err)
	}

	return id, nil
}

// ListRecent returns up to limit events, newest first.
func (r *StateEventRepo) ListRecent(ctx context.Context, limit int) ([]StateEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, at_ms, state, session_id, gap_ms, error
		FROM state_events
		ORDER BY at_ms DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list state events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]StateEvent, 0, limit)
	for rows.Next() {
		var (
			e         StateEvent
			atMs      int64
			sessionID sql.NullString
			errText   sql.NullString
		)
		if err := rows.Scan(&e.ID, &atMs, &e.State, &sessionID, &e.GapMS, &errText); err != nil {
			return nil, fmt.Errorf("scan state event: %w", err)
		}
		e.At = loadTime(atMs)
		e.SessionID = sessionID.String
		e.Error = errText.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state events: %w", err)
	}

	return out, nil
}
