package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// serialPollInterval bounds a single blocking read so cancellation is noticed.
const serialPollInterval = 100 * time.Millisecond

// serialPort is the part of serial.Port the transport drives.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

type serialOpener func(name string, mode *serial.Mode) (serialPort, error)

func openSerialPort(name string, mode *serial.Mode) (serialPort, error) {
	return serial.Open(name, mode)
}

// SerialTransport carries the same frames over a tethered serial line (8N1).
type SerialTransport struct {
	portName string
	baudRate int
	open     serialOpener

	mu      sync.Mutex
	port    serialPort
	writeMu sync.Mutex

	// readTimeout is the timeout last programmed into port; guarded by readMu.
	readMu      sync.Mutex
	readTimeout time.Duration
}

func NewSerialTransport(portName string, baudRate int) *SerialTransport {
	return &SerialTransport{
		portName: portName,
		baudRate: baudRate,
		open:     openSerialPort,
	}
}

func (t *SerialTransport) Name() string {
	return "serial"
}

func (t *SerialTransport) Target() string {
	if t.portName == "" {
		return ""
	}
	return fmt.Sprintf("%s@%d", t.portName, t.baudRate)
}

func (t *SerialTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Connect opens the port and discards whatever the device queued before we
// were listening.
func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := endpointLogger("serial", t.Target())
	if t.port != nil {
		logger.Debug("connect skipped: already connected")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.portName == "" {
		return errors.New("serial port is empty")
	}
	if t.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}

	mode := &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := t.open(t.portName, mode)
	if err != nil {
		logger.Debug("open failed", "error", err)
		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		logger.Debug("reset input buffer failed", "error", err)
	}
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		_ = port.Close()
		return fmt.Errorf("set serial read timeout: %w", err)
	}

	t.readMu.Lock()
	t.readTimeout = serialPollInterval
	t.readMu.Unlock()
	t.port = port
	logger.Info("connected")

	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("close serial port: %w", err)
	}
	endpointLogger("serial", t.Target()).Info("closed")

	return nil
}

// ReadFrame waits for one frame. When ctx carries a deadline, no single read
// blocks past it and expiry is reported as a timeout.
func (t *SerialTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	port, err := t.currentPort()
	if err != nil {
		return nil, err
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	return readFrame(func(buf []byte) error {
		return t.readFull(ctx, port, buf)
	})
}

func (t *SerialTransport) WriteFrame(ctx context.Context, payload []byte) error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}

	frame, err := encodeFrame(payload)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := writeFull(ctx, port, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := port.Drain(); err != nil {
		endpointLogger("serial", t.Target()).Debug("drain failed", "error", err)
	}

	return nil
}

func (t *SerialTransport) currentPort() (serialPort, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, ErrNotConnected
	}
	return t.port, nil
}

// readFull fills buf. The port returns (0, nil) when its read timeout lapses,
// so each read is bounded by the time left until ctx's deadline. Callers hold
// readMu.
func (t *SerialTransport) readFull(ctx context.Context, port serialPort, buf []byte) error {
	for read := 0; read < len(buf); {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.boundReadTimeout(ctx, port); err != nil {
			return err
		}
		n, err := port.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}

	return nil
}

func (t *SerialTransport) boundReadTimeout(ctx context.Context, port serialPort) error {
	timeout := serialPollInterval
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return context.DeadlineExceeded
		}
		if left < timeout {
			timeout = left
		}
	}
	if timeout == t.readTimeout {
		return nil
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("set serial read timeout: %w", err)
	}
	t.readTimeout = timeout

	return nil
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) error {
	for written := 0; written < len(buf); {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}
