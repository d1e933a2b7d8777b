package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestSerialTransportTarget(t *testing.T) {
	if got := NewSerialTransport("/dev/ttyACM0", 115200).Target(); got != "/dev/ttyACM0@115200" {
		t.Fatalf("unexpected target %q", got)
	}
	if got := NewSerialTransport("", 115200).Target(); got != "" {
		t.Fatalf("expected empty target, got %q", got)
	}
}

func TestSerialTransportConnectValidatesConfig(t *testing.T) {
	if err := NewSerialTransport("", 115200).Connect(context.Background()); err == nil {
		t.Fatalf("expected error for empty port")
	}
	if err := NewSerialTransport("/dev/ttyACM0", 0).Connect(context.Background()); err == nil {
		t.Fatalf("expected error for invalid baud")
	}
}

func TestSerialTransportConnectOpens8N1AndFlushesInput(t *testing.T) {
	port := &fakeSerialPort{}
	tr, mode := fakeSerialTransport(t, port)

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !tr.Connected() {
		t.Fatalf("expected connected")
	}
	if mode.BaudRate != 115200 || mode.DataBits != 8 || mode.Parity != serial.NoParity || mode.StopBits != serial.OneStopBit {
		t.Fatalf("unexpected mode %+v", *mode)
	}
	if port.resets != 1 {
		t.Fatalf("expected input buffer reset once, got %d", port.resets)
	}
	if got := port.lastTimeout(); got != serialPollInterval {
		t.Fatalf("expected poll interval read timeout, got %v", got)
	}
}

func TestSerialTransportRoundTripsFrames(t *testing.T) {
	frame, err := encodeFrame([]byte{0x10, 0x20})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	port := &fakeSerialPort{}
	port.rx.Write(frame)
	tr, _ := fakeSerialTransport(t, port)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	got, err := tr.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(got, []byte{0x10, 0x20}) {
		t.Fatalf("unexpected payload %x", got)
	}

	if err := tr.WriteFrame(context.Background(), []byte{0x30}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	want, _ := encodeFrame([]byte{0x30})
	if !bytes.Equal(port.tx.Bytes(), want) {
		t.Fatalf("unexpected written bytes %x", port.tx.Bytes())
	}
	if port.drains != 1 {
		t.Fatalf("expected one drain, got %d", port.drains)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := tr.ReadFrame(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestSerialReadFrameStopsOnDeadline(t *testing.T) {
	port := &fakeSerialPort{}
	tr, _ := fakeSerialTransport(t, port)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// An empty port behaves like one whose read timeout keeps expiring.
	started := time.Now()
	_, err := tr.ReadFrame(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !IsTimeout(err) {
		t.Fatalf("expected deadline to count as timeout")
	}
	if elapsed := time.Since(started); elapsed > serialPollInterval {
		t.Fatalf("read overshot the deadline: %v", elapsed)
	}
	if got := port.lastTimeout(); got <= 0 || got > 20*time.Millisecond {
		t.Fatalf("expected read timeout bounded by the deadline, got %v", got)
	}
}

func TestWriteFullWritesEverything(t *testing.T) {
	var buf bytes.Buffer
	w := &chunkWriter{dst: &buf, chunk: 2}
	if err := writeFull(context.Background(), w, []byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("write full: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("unexpected written bytes %x", buf.Bytes())
	}
}

func fakeSerialTransport(t *testing.T, port *fakeSerialPort) (*SerialTransport, *serial.Mode) {
	t.Helper()
	tr := NewSerialTransport("/dev/ttyACM0", 115200)
	var opened serial.Mode
	tr.open = func(name string, mode *serial.Mode) (serialPort, error) {
		if name != "/dev/ttyACM0" {
			t.Fatalf("unexpected port name %q", name)
		}
		opened = *mode
		return port, nil
	}
	return tr, &opened
}

// fakeSerialPort serves rx and then returns (0, nil) after sleeping for the
// programmed read timeout, the way go.bug.st/serial reports an idle line.
type fakeSerialPort struct {
	mu       sync.Mutex
	rx       bytes.Buffer
	tx       bytes.Buffer
	timeouts []time.Duration
	resets   int
	drains   int
}

func (p *fakeSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.rx.Len() > 0 {
		defer p.mu.Unlock()
		return p.rx.Read(b)
	}
	wait := serialPollInterval
	if len(p.timeouts) > 0 {
		wait = p.timeouts[len(p.timeouts)-1]
	}
	p.mu.Unlock()
	time.Sleep(wait)
	return 0, nil
}

func (p *fakeSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tx.Write(b)
}

func (p *fakeSerialPort) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drains++
	return nil
}

func (p *fakeSerialPort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return nil
}

func (p *fakeSerialPort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeouts = append(p.timeouts, d)
	return nil
}

func (p *fakeSerialPort) Close() error { return nil }

func (p *fakeSerialPort) lastTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.timeouts) == 0 {
		return 0
	}
	return p.timeouts[len(p.timeouts)-1]
}

type chunkWriter struct {
	dst   *bytes.Buffer
	chunk int
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) > w.chunk {
		p = p[:w.chunk]
	}
	return w.dst.Write(p)
}
