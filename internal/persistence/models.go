package persistence

import "time"

// StateEvent is one recorded link status snapshot.
type StateEvent struct {
	ID        int64
	At        time.Time
	State     string
	SessionID string
	// GapMS is -1 when no heartbeat had been received yet.
	GapMS int64
	Error string
}

// Session is the lifetime of one installed socket.
type Session struct {
	SessionID   string
	Target      string
	OpenedAt    time.Time
	ClosedAt    time.Time
	CloseReason string
}

func (s Session) Open() bool {
	return s.ClosedAt.IsZero()
}

func (s Session) Duration() time.Duration {
	if s.Open() {
		return 0
	}
	return s.ClosedAt.Sub(s.OpenedAt)
}
