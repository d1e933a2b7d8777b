package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type targetMessage struct {
	x, y byte
}

func (targetMessage) Type() Type { return 0x7E }

func (m targetMessage) Payload() ([]byte, error) { return []byte{m.x, m.y}, nil }

func decodeTarget(payload []byte) (Message, error) {
	if len(payload) != 2 {
		return nil, errors.New("target payload must be 2 bytes")
	}
	return targetMessage{x: payload[0], y: payload[1]}, nil
}

func registerForTest(t *testing.T, tag Type, fn DecodeFunc) {
	t.Helper()
	require.NoError(t, Register(tag, fn))
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, tag)
		registryMu.Unlock()
	})
}

func TestEncodeHeartbeatIsTagOnly(t *testing.T) {
	raw, err := Encode(NewHeartbeat())
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(TypeHeartbeat)}, raw)

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, IsHeartbeat(msg))
}

func TestDecodeHeartbeatRejectsPayload(t *testing.T) {
	_, err := Decode([]byte{byte(TypeHeartbeat), 0x01})
	require.Error(t, err)
}

func TestDecodeRejectsEmptyAndZeroTag(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = Decode([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrInvalidTag)
}

func TestDecodeUnknownTagFallsBackToRaw(t *testing.T) {
	msg, err := Decode([]byte{0x42, 0xAA, 0xBB})
	require.NoError(t, err)

	raw, ok := msg.(Raw)
	require.True(t, ok, "expected Raw, got %T", msg)
	assert.Equal(t, Type(0x42), raw.Type())
	payload, err := raw.Payload()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, payload)
}

func TestRegisteredVariantDecodes(t *testing.T) {
	registerForTest(t, 0x7E, decodeTarget)

	raw, err := Encode(targetMessage{x: 3, y: 4})
	require.NoError(t, err)

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, targetMessage{x: 3, y: 4}, msg)
	assert.False(t, IsHeartbeat(msg))
}

func TestRegisterRejectsDuplicatesAndZeroTag(t *testing.T) {
	assert.ErrorIs(t, Register(0, decodeTarget), ErrInvalidTag)
	assert.ErrorIs(t, Register(TypeHeartbeat, decodeTarget), ErrTagRegistered)
	assert.Error(t, Register(0x55, nil))
}

func TestRawCopiesInput(t *testing.T) {
	data := []byte{1, 2, 3}
	r := NewRaw(0x10, data)
	data[0] = 9

	payload, err := r.Payload()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}
