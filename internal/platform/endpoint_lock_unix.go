//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

type unixFileLock struct {
	path string
	file *os.File
}

func acquireFileLock(path string) (EndpointLock, error) {
	// #nosec G304 -- path is built from the app data dir and a sanitized name.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrEndpointBusy
		}

		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	return &unixFileLock{path: path, file: file}, nil
}

func (l *unixFileLock) Path() string {
	return l.path
}

func (l *unixFileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil && !errors.Is(unlockErr, syscall.EBADF) {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock file: %w", closeErr)
	}

	return nil
}
