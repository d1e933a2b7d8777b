package connectors

import (
	"time"

	"github.com/daisycv/visionlink/internal/message"
)

// ConnectionState describes the link lifecycle state shown in UI.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
)

// ConnectionStatus is a bus event snapshot of current link status.
type ConnectionStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	SessionID     string
	GapMS         int64
	Timestamp     time.Time
}

// SessionEvent reports a socket being installed or discarded.
type SessionEvent struct {
	SessionID string
	Target    string
	Opened    bool
	Reason    string
	Timestamp time.Time
}

// InboundMessage is a decoded non-heartbeat message from the controller.
type InboundMessage struct {
	SessionID string
	Message   message.Message
	Timestamp time.Time
}

// QueueDrop reports an outbound message that could not be enqueued in time.
type QueueDrop struct {
	Type      message.Type
	Dropped   uint64
	Timestamp time.Time
}
