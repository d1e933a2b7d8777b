package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) (context.Context, *StateEventRepo, *SessionRepo) {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return ctx, NewStateEventRepo(db), NewSessionRepo(db)
}

func TestClearDatabase_ClearsAllTables(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now()
	if _, err := NewStateEventRepo(db).Insert(ctx, StateEvent{At: now, State: "connected", GapMS: 3}); err != nil {
		t.Fatalf("seed state events: %v", err)
	}
	if err := NewSessionRepo(db).Open(ctx, Session{SessionID: "s-1", Target: "10.12.34.11:5800", OpenedAt: now}); err != nil {
		t.Fatalf("seed sessions: %v", err)
	}

	if err := ClearDatabase(ctx, db); err != nil {
		t.Fatalf("clear database: %v", err)
	}

	tableChecks := []struct {
		name  string
		query string
	}{
		{name: "state_events", query: "SELECT COUNT(*) FROM state_events;"},
		{name: "sessions", query: "SELECT COUNT(*) FROM sessions;"},
	}
	for _, table := range tableChecks {
		var count int
		if err := db.QueryRowContext(ctx, table.query).Scan(&count); err != nil {
			t.Fatalf("count rows in %s: %v", table.name, err)
		}
		if count != 0 {
			t.Fatalf("expected %s to be empty after clear, got %d rows", table.name, count)
		}
	}
}

func TestClearDatabase_RejectsNilDB(t *testing.T) {
	if err := ClearDatabase(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
