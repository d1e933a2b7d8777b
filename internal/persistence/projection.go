package persistence

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/daisycv/visionlink/internal/bus"
	"github.com/daisycv/visionlink/internal/connectors"
)

// WriteQueue serializes persistence writes from async bus events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// HistoryProjection records link status and session events from the bus
// until Stop.
type HistoryProjection struct {
	b          bus.MessageBus
	statusSub  bus.Subscription
	sessionSub bus.Subscription

	wg       conc.WaitGroup
	stopOnce sync.Once
}

// StartHistoryProjection subscribes before it returns, so no event published
// after the call is missed.
func StartHistoryProjection(b bus.MessageBus, queue WriteQueue, events *StateEventRepo, sessions *SessionRepo) *HistoryProjection {
	p := &HistoryProjection{
		b:          b,
		statusSub:  b.Subscribe(connectors.TopicConnStatus),
		sessionSub: b.Subscribe(connectors.TopicSession),
	}

	p.wg.Go(func() {
		for raw := range p.statusSub {
			status, ok := raw.(connectors.ConnectionStatus)
			if !ok {
				continue
			}
			e := StateEvent{
				At:        status.Timestamp,
				State:     string(status.State),
				SessionID: status.SessionID,
				GapMS:     status.GapMS,
				Error:     status.Err,
			}
			queue.Enqueue("insert_state_event", func(writeCtx context.Context) error {
				_, err := events.Insert(writeCtx, e)
				return err
			})
		}
	})

	p.wg.Go(func() {
		for raw := range p.sessionSub {
			ev, ok := raw.(connectors.SessionEvent)
			if !ok {
				continue
			}
			if ev.Opened {
				s := Session{SessionID: ev.SessionID, Target: ev.Target, OpenedAt: ev.Timestamp}
				queue.Enqueue("open_session", func(writeCtx context.Context) error {
					return sessions.Open(writeCtx, s)
				})
				continue
			}
			queue.Enqueue("close_session", func(writeCtx context.Context) error {
				err := sessions.Close(writeCtx, ev.SessionID, ev.Timestamp, ev.Reason)
				if errors.Is(err, ErrSessionNotOpen) {
					return nil
				}
				return err
			})
		}
	})

	return p
}

// Stop unsubscribes and returns once every event published before the call
// has been handed to the write queue. It must not be called from a bus
// subscriber goroutine.
func (p *HistoryProjection) Stop() {
	p.stopOnce.Do(func() {
		p.b.Unsubscribe(p.statusSub, connectors.TopicConnStatus)
		p.b.Unsubscribe(p.sessionSub, connectors.TopicSession)
		p.wg.Wait()
	})
}
