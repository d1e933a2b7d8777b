package message

import (
	"errors"
	"fmt"
	"sync"
)

// Type is the one-byte tag that leads every encoded message.
type Type uint8

const (
	TypeHeartbeat Type = 0x01
)

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrInvalidTag    = errors.New("invalid message tag")
	ErrTagRegistered = errors.New("message tag already registered")
)

// Message is a wire unit exchanged with the controller.
type Message interface {
	Type() Type
	Payload() ([]byte, error)
}

// DecodeFunc rebuilds a message variant from its payload bytes.
type DecodeFunc func(payload []byte) (Message, error)

var (
	registryMu sync.RWMutex
	registry   = map[Type]DecodeFunc{
		TypeHeartbeat: decodeHeartbeat,
	}
)

// Register adds a decoder for a new variant. Unregistered tags decode to Raw.
func Register(tag Type, fn DecodeFunc) error {
	if tag == 0 {
		return ErrInvalidTag
	}
	if fn == nil {
		return fmt.Errorf("decoder for tag 0x%02x is nil", uint8(tag))
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[tag]; ok {
		return fmt.Errorf("%w: 0x%02x", ErrTagRegistered, uint8(tag))
	}
	registry[tag] = fn

	return nil
}

// Encode returns tag || payload.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("message is nil")
	}
	tag := msg.Type()
	if tag == 0 {
		return nil, ErrInvalidTag
	}
	payload, err := msg.Payload()
	if err != nil {
		return nil, fmt.Errorf("encode payload for tag 0x%02x: %w", uint8(tag), err)
	}

	out := make([]byte, 1+len(payload))
	out[0] = byte(tag)
	copy(out[1:], payload)

	return out, nil
}

// Decode reverses Encode.
func Decode(raw []byte) (Message, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyFrame
	}
	tag := Type(raw[0])
	if tag == 0 {
		return nil, ErrInvalidTag
	}
	payload := raw[1:]

	registryMu.RLock()
	fn, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return NewRaw(tag, payload), nil
	}

	msg, err := fn(payload)
	if err != nil {
		return nil, fmt.Errorf("decode tag 0x%02x: %w", uint8(tag), err)
	}

	return msg, nil
}

// IsHeartbeat reports whether msg is a liveness marker.
func IsHeartbeat(msg Message) bool {
	return msg != nil && msg.Type() == TypeHeartbeat
}

func (t Type) String() string {
	if t == TypeHeartbeat {
		return "heartbeat"
	}

	return fmt.Sprintf("0x%02x", uint8(t))
}
