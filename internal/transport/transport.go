package transport

import (
	"context"
	"errors"
	"net"
)

var ErrNotConnected = errors.New("transport is not connected")

// Transport is one stream endpoint carrying framed messages.
type Transport interface {
	Name() string
	Target() string
	Connected() bool
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
}

// IsTimeout reports whether err is a deadline expiry rather than a broken stream.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
