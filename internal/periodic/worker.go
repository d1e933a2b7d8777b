// Package periodic runs a tick function on a fixed cadence until told to stop.
package periodic

import (
	"log/slog"
	"time"
)

// Sleeper lets a tick pause mid-iteration with the same wake-up rules as the loop.
type Sleeper interface {
	// Sleep waits for d. It returns false when the wait was cut short.
	Sleep(d time.Duration) bool
}

// Worker calls Tick, waits Period, and repeats while Running reports true.
//
// Stop wakes pending waits early; the worker still only exits once Running
// turns false, at the top of the next iteration.
type Worker struct {
	Name    string
	Period  time.Duration
	Running func() bool
	Tick    func(s Sleeper)
	Stop    <-chan struct{}
	Logger  *slog.Logger
}

// Run blocks until Running reports false.
func (w *Worker) Run() {
	logger := w.logger()
	logger.Debug("worker started", "period", w.Period)
	defer logger.Debug("worker stopped")

	for w.Running() {
		w.Tick(w)
		w.Sleep(w.Period)
	}
}

func (w *Worker) Sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-w.Stop:
		if w.Running() {
			w.logger().Warn("wait interrupted", "wait", d)
		}
		return false
	}
}

func (w *Worker) logger() *slog.Logger {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return logger.With("worker", w.Name)
}
