package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Open records a newly installed socket. Reopening a known session is a no-op.
func (r *SessionRepo) Open(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions(session_id, target, opened_at_ms)
		VALUES(?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`, s.SessionID, s.Target, storedMillis(s.OpenedAt))
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	return nil
}

// Close stamps the close time and reason. Only the first close is kept.
func (r *SessionRepo) Close(ctx context.Context, sessionID string, at time.Time, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET closed_at_ms = ?, close_reason = ?
		WHERE session_id = ? AND closed_at_ms IS NULL
	`, storedMillis(at), optionalText(reason), sessionID)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("close session %s: %w", sessionID, ErrSessionNotOpen)
	}

	return nil
}

func (r *SessionRepo) ListRecent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, target, opened_at_ms, closed_at_ms, close_reason
		FROM sessions
		ORDER BY opened_at_ms DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Session
	for rows.Next() {
		var (
			s        Session
			openedMs int64
			closedMs sql.NullInt64
			reason   sql.NullString
		)
		if err := rows.Scan(&s.SessionID, &s.Target, &openedMs, &closedMs, &reason); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.OpenedAt = loadTime(openedMs)
		s.ClosedAt = loadOptionalTime(closedMs)
		s.CloseReason = reason.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return out, nil
}
