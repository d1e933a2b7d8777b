package persistence

import (
	"database/sql"
	"time"
)

// Timestamps are stored as unix milliseconds. Sub-millisecond precision is
// dropped on write.

// storedMillis encodes t for a NOT NULL column. An unset time is stamped with
// the write time so a row never lands at the epoch.
func storedMillis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

func loadTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// loadOptionalTime maps NULL to the zero time.
func loadOptionalTime(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return time.UnixMilli(ms.Int64)
}

// optionalText stores an empty string as NULL.
func optionalText(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
