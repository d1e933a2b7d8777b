//go:build !unix && !windows

package platform

import (
	"fmt"
	"runtime"
)

func acquireFileLock(_ string) (EndpointLock, error) {
	return nil, fmt.Errorf("%w on %s", ErrEndpointLockUnsupported, runtime.GOOS)
}
