//go:build !windows

package signals

import (
	"errors"
	"syscall"
)

// processRunning probes pid with signal 0. EPERM means the process exists
// under another user, which still counts as a running server.
func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	switch err := syscall.Kill(pid, 0); {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		return true
	default:
		return false
	}
}
