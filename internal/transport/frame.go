package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

var frameHeader = [2]byte{0xDC, 0x5A}

// MaxPayload is the largest payload a single frame can carry.
const MaxPayload = math.MaxUint16

type readFullFunc func(buf []byte) error

func encodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("payload too large: %d", len(payload))
	}

	frame := make([]byte, 4+len(payload))
	frame[0] = frameHeader[0]
	frame[1] = frameHeader[1]
	// #nosec G115 -- length is bounded by MaxPayload above.
	payloadLen := uint16(len(payload))
	binary.BigEndian.PutUint16(frame[2:4], payloadLen)
	copy(frame[4:], payload)

	return frame, nil
}

func readFrame(readFull readFullFunc) ([]byte, error) {
	if err := resyncToHeader(readFull); err != nil {
		return nil, err
	}

	var lenBuf [2]byte
	if err := readFull(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	ln := int(binary.BigEndian.Uint16(lenBuf[:]))
	if ln <= 0 {
		return nil, fmt.Errorf("invalid frame length: %d", ln)
	}

	payload := make([]byte, ln)
	if err := readFull(payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return payload, nil
}

// resyncToHeader consumes bytes up to and including the next header. A
// repeated first header byte is still a candidate start.
func resyncToHeader(readFull readFullFunc) error {
	buf := make([]byte, 1)
	if err := readFull(buf); err != nil {
		return fmt.Errorf("read frame header byte 1: %w", err)
	}
	for {
		if buf[0] != frameHeader[0] {
			if err := readFull(buf); err != nil {
				return fmt.Errorf("read frame header byte 1: %w", err)
			}
			continue
		}
		if err := readFull(buf); err != nil {
			return fmt.Errorf("read frame header byte 2: %w", err)
		}
		if buf[0] == frameHeader[1] {
			return nil
		}
	}
}

func ioReadFullFunc(r io.Reader) readFullFunc {
	return func(buf []byte) error {
		_, err := io.ReadFull(r, buf)

		return err
	}
}

// WriteFrame frames payload onto w. Used by stream peers that own a raw net.Conn.
func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := encodeFrame(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// ReadFrame reads the next frame payload from r, skipping noise before the header.
func ReadFrame(r io.Reader) ([]byte, error) {
	return readFrame(ioReadFullFunc(r))
}
