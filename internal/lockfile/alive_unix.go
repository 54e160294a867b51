//go:build !windows

package lockfile

import (
	"errors"
	"os"
	"syscall"
)

// processAlive reports whether pid names a running process. Signal 0
// probes without delivering anything; EPERM means the process exists but
// belongs to someone else.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
