package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/daisycv/visionlink/internal/config"
)

func TestFanoutWriter_ContinuesWhenOneDestinationFails(t *testing.T) {
	var dst bytes.Buffer
	w := newFanoutWriter(errorWriter{err: errors.New("broken stderr")}, &dst)

	n, err := w.Write([]byte("test"))
	if err != nil {
		t.Fatalf("write returned error: %v", err)
	}
	if n != len("test") {
		t.Fatalf("unexpected bytes written: got %d, want %d", n, len("test"))
	}
	if got := dst.String(); got != "test" {
		t.Fatalf("unexpected destination contents: got %q", got)
	}
}

func TestFanoutWriter_FailsWhenEveryDestinationFails(t *testing.T) {
	wantErr := errors.New("first")
	w := newFanoutWriter(errorWriter{err: wantErr}, errorWriter{err: errors.New("second")}, nil)

	n, err := w.Write([]byte("test"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected first error, got %v", err)
	}
	if n != 0 {
		t.Fatalf("expected zero bytes reported, got %d", n)
	}
}

func TestManagerConfigure_LogFileStillReceivesLogsWhenStderrFails(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	origStderr := os.Stderr
	t.Cleanup(func() { os.Stderr = origStderr })

	brokenStderr, err := os.CreateTemp(t.TempDir(), "broken-stderr-*")
	if err != nil {
		t.Fatalf("create broken stderr: %v", err)
	}
	if err := brokenStderr.Close(); err != nil {
		t.Fatalf("close broken stderr: %v", err)
	}
	os.Stderr = brokenStderr

	logPath := filepath.Join(t.TempDir(), "logs", "visionlink.log")
	m := NewManager()
	t.Cleanup(func() { _ = m.Close() })

	if err := m.Configure(config.LoggingConfig{Level: "debug", LogToFile: true}, logPath); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	slog.Info("file must receive this message")

	if err := m.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	cleanLogPath := filepath.Clean(logPath)
	// #nosec G304 -- logPath is created from t.TempDir() in this test.
	raw, err := os.ReadFile(cleanLogPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(raw, []byte("file must receive this message")) {
		t.Fatalf("log file does not contain test message, contents: %q", string(raw))
	}
}

func TestManagerConfigure_JSONFormatTagsComponent(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	origStderr := os.Stderr
	t.Cleanup(func() { os.Stderr = origStderr })
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	t.Cleanup(func() { _ = devNull.Close() })
	os.Stderr = devNull

	logPath := filepath.Join(t.TempDir(), "visionlink.log")
	m := NewManager()
	t.Cleanup(func() { _ = m.Close() })
	if err := m.Configure(config.LoggingConfig{Level: "info", Format: "json", LogToFile: true}, logPath); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	m.Logger("link").Info("link state changed", "to", "connected")
	m.Logger("link").Debug("filtered out")
	if err := m.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	// #nosec G304 -- logPath is created from t.TempDir() in this test.
	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), raw)
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["component"] != "link" || rec["to"] != "connected" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestManagerConfigure_RejectsUnknownValues(t *testing.T) {
	m := NewManager()
	if err := m.Configure(config.LoggingConfig{Level: "loud"}, ""); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
	if err := m.Configure(config.LoggingConfig{Level: "info", Format: "xml"}, ""); err == nil {
		t.Fatalf("expected unknown format to fail")
	}
}

type errorWriter struct {
	err error
}

func (w errorWriter) Write(_ []byte) (int, error) {
	return 0, w.err
}
