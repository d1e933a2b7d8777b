//go:build windows

package platform

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

type windowsFileLock struct {
	path string
	file *os.File
}

func acquireFileLock(path string) (EndpointLock, error) {
	// #nosec G304 -- path is built from the app data dir and a sanitized name.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	ol := new(windows.Overlapped)
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	if err := windows.LockFileEx(windows.Handle(file.Fd()), flags, 0, 1, 0, ol); err != nil {
		_ = file.Close()
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return nil, ErrEndpointBusy
		}

		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	return &windowsFileLock{path: path, file: file}, nil
}

func (l *windowsFileLock) Path() string {
	return l.path
}

func (l *windowsFileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, new(windows.Overlapped))
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock file: %w", closeErr)
	}

	return nil
}
