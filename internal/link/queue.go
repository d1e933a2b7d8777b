package link

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/daisycv/visionlink/internal/message"
)

const DefaultQueueCapacity = 64

// MessageQueue is a bounded FIFO of outbound messages shared by producers
// and the transmit pathway.
type MessageQueue struct {
	items   chan message.Message
	dropped atomic.Uint64
	onDrop  func(msg message.Message, total uint64)
}

func NewMessageQueue(capacity int) *MessageQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	return &MessageQueue{items: make(chan message.Message, capacity)}
}

// Offer inserts msg, waiting up to timeout for space. It never blocks longer
// than timeout; a non-positive timeout makes a single attempt.
func (q *MessageQueue) Offer(msg message.Message, timeout time.Duration) bool {
	if msg == nil {
		return false
	}

	select {
	case q.items <- msg:
		return true
	default:
	}
	if timeout <= 0 {
		q.drop(msg)
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.items <- msg:
		return true
	case <-timer.C:
		q.drop(msg)
		return false
	}
}

// Take removes the oldest message, waiting until one arrives or ctx is done.
func (q *MessageQueue) Take(ctx context.Context) (message.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-q.items:
		return msg, nil
	}
}

// Poll removes the oldest message without waiting.
func (q *MessageQueue) Poll() (message.Message, bool) {
	select {
	case msg := <-q.items:
		return msg, true
	default:
		return nil, false
	}
}

func (q *MessageQueue) Len() int {
	return len(q.items)
}

func (q *MessageQueue) Cap() int {
	return cap(q.items)
}

// Dropped counts failed offers.
func (q *MessageQueue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *MessageQueue) drop(msg message.Message) {
	total := q.dropped.Add(1)
	if q.onDrop != nil {
		q.onDrop(msg, total)
	}
}
