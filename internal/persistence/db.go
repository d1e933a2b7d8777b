package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // register sqlite driver
)

// connPragmas run on every pooled connection, busy_timeout first.
var connPragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// historyDSN attaches connPragmas to path. Writes take the lock up front so a
// concurrent history reader in another process waits instead of failing.
func historyDSN(path string) string {
	q := url.Values{}
	for _, p := range connPragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")

	return path + "?" + q.Encode()
}

// Open opens the history database at path, creating its directory when
// missing, and migrates the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("history db path is empty")
	}
	if strings.ContainsRune(path, '?') {
		return nil, fmt.Errorf("history db path %q contains '?'", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history db dir: %w", err)
	}

	db, err := sql.Open("sqlite", historyDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, closeOnError(db, fmt.Errorf("ping history db: %w", err))
	}
	if err := migrate(ctx, db); err != nil {
		return nil, closeOnError(db, err)
	}

	return db, nil
}

func closeOnError(db *sql.DB, err error) error {
	if cerr := db.Close(); cerr != nil {
		return errors.Join(err, fmt.Errorf("close history db: %w", cerr))
	}
	return err
}
