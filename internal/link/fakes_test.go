package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daisycv/visionlink/internal/message"
	"github.com/daisycv/visionlink/internal/transport"
)

type fakeClock struct {
	now atomic.Int64
}

func newFakeClock(start int64) *fakeClock {
	c := &fakeClock{}
	c.now.Store(start)
	return c
}

func (c *fakeClock) NowMillis() int64 { return c.now.Load() }

func (c *fakeClock) Advance(d time.Duration) { c.now.Add(d.Milliseconds()) }

// fakeSleeper advances the fake clock instead of sleeping.
type fakeSleeper struct {
	clock  *fakeClock
	sleeps []time.Duration
}

func (s *fakeSleeper) Sleep(d time.Duration) bool {
	s.sleeps = append(s.sleeps, d)
	s.clock.Advance(d)
	return true
}

type fakeTransport struct {
	connectErr error
	target     string

	mu        sync.Mutex
	connected bool
	written   [][]byte
}

func (t *fakeTransport) Name() string { return "fake" }
func (t *fakeTransport) Target() string {
	if t.target == "" {
		return "fake:1"
	}
	return t.target
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) Connect(context.Context) error {
	if t.connectErr != nil {
		return t.connectErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func (t *fakeTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (t *fakeTransport) WriteFrame(_ context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return errors.New("closed")
	}
	t.written = append(t.written, payload)
	return nil
}

// fakeDialer hands out fakeTransports and remembers them.
type fakeDialer struct {
	mu         sync.Mutex
	connectErr error
	target     string
	made       []*fakeTransport
}

func (d *fakeDialer) New() transport.Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	tr := &fakeTransport{connectErr: d.connectErr, target: d.target}
	d.made = append(d.made, tr)
	return tr
}

func (d *fakeDialer) SetTarget(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = target
}

func (d *fakeDialer) SetConnectErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

type countingListener struct {
	connected    atomic.Int32
	disconnected atomic.Int32
}

func (l *countingListener) OnConnected()    { l.connected.Add(1) }
func (l *countingListener) OnDisconnected() { l.disconnected.Add(1) }

func drainHeartbeats(q *MessageQueue) int {
	n := 0
	for {
		msg, ok := q.Poll()
		if !ok {
			return n
		}
		if message.IsHeartbeat(msg) {
			n++
		}
	}
}

func nonHeartbeat() message.Message {
	return message.NewRaw(0x20, []byte{0x01})
}
