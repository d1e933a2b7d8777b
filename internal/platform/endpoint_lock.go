// Package platform holds OS specific helpers.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const lockDirName = "locks"

// ErrEndpointBusy is returned when another process already drives the endpoint.
var ErrEndpointBusy = errors.New("endpoint already in use by another process")

// ErrEndpointLockUnsupported indicates the current platform has no lock backend.
var ErrEndpointLockUnsupported = errors.New("endpoint lock unsupported")

// EndpointLock is held for as long as a process owns a link endpoint.
type EndpointLock interface {
	Path() string
	Release() error
}

// AcquireEndpointLock takes an exclusive, non-blocking lock for target below
// dataDir. Locks are advisory and vanish with the owning process.
func AcquireEndpointLock(dataDir, target string) (EndpointLock, error) {
	dir := filepath.Join(dataDir, lockDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	return acquireFileLock(filepath.Join(dir, lockFileName(target)))
}

func lockFileName(target string) string {
	return sanitizeLockComponent(target, "default") + ".lock"
}

func sanitizeLockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	clean := strings.Trim(b.String(), "_-.")
	if clean == "" {
		return fallback
	}

	return clean
}
