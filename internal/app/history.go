package app

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/daisycv/visionlink/internal/persistence"
)

// History is the sqlite record of link state changes and sessions.
type History struct {
	DB          *sql.DB
	StateEvents *persistence.StateEventRepo
	Sessions    *persistence.SessionRepo
}

func OpenHistory(ctx context.Context, path string) (*History, error) {
	db, err := persistence.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	return &History{
		DB:          db,
		StateEvents: persistence.NewStateEventRepo(db),
		Sessions:    persistence.NewSessionRepo(db),
	}, nil
}

// RecentEvents returns up to limit state events, newest first. A
// non-positive limit means RecentHistoryLoad.
func (h *History) RecentEvents(ctx context.Context, limit int) ([]persistence.StateEvent, error) {
	return h.StateEvents.ListRecent(ctx, historyLimit(limit))
}

// RecentSessions returns up to limit sessions, newest first.
func (h *History) RecentSessions(ctx context.Context, limit int) ([]persistence.Session, error) {
	return h.Sessions.ListRecent(ctx, historyLimit(limit))
}

func (h *History) Clear(ctx context.Context) error {
	if err := persistence.ClearDatabase(ctx, h.DB); err != nil {
		return err
	}
	slog.Info("history cleared")

	return nil
}

func (h *History) Close() error {
	return h.DB.Close()
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return RecentHistoryLoad
	}
	return limit
}
