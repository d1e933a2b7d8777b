package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultIPPort         = 5800
	defaultConnectTimeout = 2 * time.Second
)

// IPTransport sends and receives framed traffic over a TCP socket.
type IPTransport struct {
	host           string
	port           int
	connectTimeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
}

func NewIPTransport(host string, port int, connectTimeout time.Duration) *IPTransport {
	if port == 0 {
		port = DefaultIPPort
	}
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	return &IPTransport{host: host, port: port, connectTimeout: connectTimeout}
}

func (t *IPTransport) Name() string {
	return "ip"
}

func (t *IPTransport) Target() string {
	if t.host == "" {
		return ""
	}

	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

func (t *IPTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn != nil
}

func (t *IPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := t.Target()
	logger := endpointLogger("ip", target)

	if t.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}

	if t.host == "" {
		logger.Warn("connect failed: host is empty")

		return errors.New("ip host is empty")
	}

	dialer := net.Dialer{Timeout: t.connectTimeout}
	logger.Debug("connecting")
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		logger.Debug("connect failed", "error", err)

		return fmt.Errorf("dial tcp: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	t.conn = conn
	logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (t *IPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := endpointLogger("ip", t.Target())

	if t.conn == nil {
		logger.Debug("close skipped: not connected")

		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

func (t *IPTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	logger := endpointLogger("ip", t.Target())
	conn, err := t.currentConn()
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	payload, err := readFrame(ioReadFullFunc(conn))
	if err != nil {
		return nil, err
	}
	logger.Debug("read frame", "len", len(payload))

	return payload, nil
}

func (t *IPTransport) WriteFrame(ctx context.Context, payload []byte) error {
	logger := endpointLogger("ip", t.Target())
	conn, err := t.currentConn()
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}

	frame, err := encodeFrame(payload)
	if err != nil {
		logger.Warn("encode frame failed", "payload_len", len(payload), "error", err)

		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := conn.Write(frame); err != nil {
		logger.Debug("write frame failed", "payload_len", len(payload), "frame_len", len(frame), "error", err)

		return fmt.Errorf("write frame: %w", err)
	}
	logger.Debug("write frame", "payload_len", len(payload), "frame_len", len(frame))

	return nil
}

func (t *IPTransport) currentConn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}
