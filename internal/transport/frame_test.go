package transport

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestReadFrameResyncsToHeader(t *testing.T) {
	want := []byte{0x01, 0x02, 0x03}
	raw := bytes.NewBuffer([]byte{
		0x00, 0x11, frameHeader[0], 0x22, // noise, including a lone first header byte
		frameHeader[0], frameHeader[1],
		0x00, 0x03,
		0x01, 0x02, 0x03,
	})

	got, err := readFrame(ioReadFullFunc(raw))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("payload mismatch: got %x want %x", got, want)
	}
}

func TestReadFrameResyncsOnRepeatedFirstHeaderByte(t *testing.T) {
	tests := []struct {
		name  string
		noise []byte
	}{
		{name: "one extra first byte", noise: []byte{frameHeader[0]}},
		{name: "several extra first bytes", noise: []byte{frameHeader[0], frameHeader[0], frameHeader[0]}},
		{name: "noise then extra first byte", noise: []byte{0x7F, frameHeader[0], 0x10, frameHeader[0]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := append([]byte{}, tt.noise...)
			raw = append(raw, frameHeader[0], frameHeader[1], 0x00, 0x01, 0x01)

			got, err := readFrame(ioReadFullFunc(bytes.NewBuffer(raw)))
			if err != nil {
				t.Fatalf("read frame: %v", err)
			}
			if !bytes.Equal(got, []byte{0x01}) {
				t.Fatalf("payload mismatch: got %x want 01", got)
			}
		})
	}
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	raw := bytes.NewBuffer([]byte{
		frameHeader[0], frameHeader[1],
		0x00, 0x00,
	})

	_, err := readFrame(ioReadFullFunc(raw))
	if err == nil {
		t.Fatalf("expected error for zero-length frame, got nil")
	}
}

func TestEncodeFrameRejectsEmptyPayload(t *testing.T) {
	if _, err := encodeFrame(nil); err == nil {
		t.Fatalf("expected empty payload error, got nil")
	}
}

func TestEncodeFramePayloadTooLarge(t *testing.T) {
	payload := make([]byte, math.MaxUint16+1)
	_, err := encodeFrame(payload)
	if err == nil {
		t.Fatalf("expected payload size error, got nil")
	}
}

func TestWriteFrameAndReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte{0x01}); err != nil {
		t.Fatalf("write heartbeat frame: %v", err)
	}
	if err := WriteFrame(&buf, []byte("hello")); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	first, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if !bytes.Equal(first, []byte{0x01}) {
		t.Fatalf("first payload mismatch: got %x", first)
	}
	second, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read second frame: %v", err)
	}
	if string(second) != "hello" {
		t.Fatalf("second payload mismatch: got %q", string(second))
	}
}

func TestReadFramePayloadEOF(t *testing.T) {
	raw := bytes.NewBuffer([]byte{
		frameHeader[0], frameHeader[1],
		0x00, 0x04,
		0x01, 0x02,
	})

	_, err := readFrame(ioReadFullFunc(raw))
	if err == nil {
		t.Fatalf("expected payload read error, got nil")
	}
	if errors.Is(err, io.EOF) {
		t.Fatalf("expected wrapped error, got raw io.EOF")
	}
}
