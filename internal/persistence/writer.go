package persistence

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultWriterCapacity = 256
	writerMaxAttempts     = 3
	writerDrainTimeout    = 2 * time.Second
	writerWriteTimeout    = 5 * time.Second
)

type writeCmd struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue runs database writes one at a time on a single goroutine so
// event handlers never wait on SQLite.
type WriterQueue struct {
	logger *slog.Logger
	queue  chan writeCmd
	done   chan struct{}
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if capacity <= 0 {
		capacity = defaultWriterCapacity
	}
	if logger == nil {
		logger = slog.Default().With("component", "persistence")
	}
	return &WriterQueue{
		logger: logger,
		queue:  make(chan writeCmd, capacity),
		done:   make(chan struct{}),
	}
}

func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	cmd := writeCmd{name: name, fn: fn}
	select {
	case w.queue <- cmd:
	default:
		w.logger.Warn("db writer queue full, deferring write", "cmd", name)
		go func() {
			select {
			case w.queue <- cmd:
			case <-w.done:
			}
		}()
	}
}

// Start processes writes until ctx is done, then flushes what is already
// queued with a short deadline of its own.
func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				w.drain()
				return
			case cmd := <-w.queue:
				if ctx.Err() != nil {
					w.drain(cmd)
					return
				}
				w.runWithRetry(ctx, cmd)
			}
		}
	}()
}

// Done is closed once the writer has stopped and flushed.
func (w *WriterQueue) Done() <-chan struct{} {
	return w.done
}

func (w *WriterQueue) drain(first ...writeCmd) {
	ctx, cancel := context.WithTimeout(context.Background(), writerDrainTimeout)
	defer cancel()

	for _, cmd := range first {
		if err := cmd.fn(ctx); err != nil {
			w.logger.Error("db write failed during flush", "cmd", cmd.name, "error", err)
		}
	}
	for {
		select {
		case cmd := <-w.queue:
			if err := cmd.fn(ctx); err != nil {
				w.logger.Error("db write failed during flush", "cmd", cmd.name, "error", err)
			}
		default:
			return
		}
	}
}

// runWithRetry lets a started write finish even if ctx is cancelled mid-way;
// ctx only cuts the backoff between attempts short.
func (w *WriterQueue) runWithRetry(ctx context.Context, cmd writeCmd) {
	for attempt := 1; attempt <= writerMaxAttempts; attempt++ {
		if err := w.runOnce(ctx, cmd); err != nil {
			w.logger.Error("db write failed", "cmd", cmd.name, "attempt", attempt, "error", err)
			if attempt == writerMaxAttempts {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return
	}
}

func (w *WriterQueue) runOnce(ctx context.Context, cmd writeCmd) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writerWriteTimeout)
	defer cancel()

	return cmd.fn(writeCtx)
}
