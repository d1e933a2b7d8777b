package link

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/daisycv/visionlink/internal/transport"
)

// socket is one connected transport. It is installed whole and discarded
// whole; the pathways may only flag it as broken.
type socket struct {
	tr       transport.Transport
	id       uuid.UUID
	openedAt time.Time

	broken    atomic.Bool
	reasonMu  sync.Mutex
	reason    string
	closeOnce sync.Once
}

func newSocket(tr transport.Transport) *socket {
	return &socket{tr: tr, id: uuid.New(), openedAt: time.Now()}
}

func (s *socket) usable() bool {
	return s != nil && !s.broken.Load() && s.tr.Connected()
}

// markBroken records the first failure and closes the stream so any blocked
// reader returns.
func (s *socket) markBroken(err error) bool {
	if !s.broken.CompareAndSwap(false, true) {
		return false
	}
	s.setReason(err.Error())
	s.close()

	return true
}

func (s *socket) close() {
	s.closeOnce.Do(func() {
		_ = s.tr.Close()
	})
}

func (s *socket) setReason(reason string) {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	if s.reason == "" {
		s.reason = reason
	}
}

func (s *socket) closeReason() string {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()

	return s.reason
}
