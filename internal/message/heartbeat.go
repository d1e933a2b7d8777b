package message

import "fmt"

// Heartbeat marks liveness and carries nothing else. Build a new one per send.
type Heartbeat struct{}

func NewHeartbeat() Heartbeat {
	return Heartbeat{}
}

func (Heartbeat) Type() Type {
	return TypeHeartbeat
}

func (Heartbeat) Payload() ([]byte, error) {
	return nil, nil
}

func (Heartbeat) String() string {
	return "heartbeat"
}

func decodeHeartbeat(payload []byte) (Message, error) {
	if len(payload) != 0 {
		return nil, fmt.Errorf("heartbeat payload must be empty, got %d bytes", len(payload))
	}

	return Heartbeat{}, nil
}
