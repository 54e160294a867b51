// Package lockfile serializes access to on-disk state shared between
// processes. The approval database has one writer at a time; a second
// instance runs without persistence instead of corrupting the first one's
// view.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrHeld reports that a live process holds the lock.
var ErrHeld = errors.New("lock held by another process")

// staleAfter caps how long a lock outlives its writer. PIDs get recycled;
// a lock this old is treated as abandoned even when some process answers
// under the recorded PID.
const staleAfter = time.Hour

// Lock is a PID-stamped exclusive file lock.
type Lock struct {
	path string
	file *os.File
}

func New(path string) *Lock {
	return &Lock{path: path}
}

func (l *Lock) Path() string { return l.path }

// Acquire takes the lock, breaking a stale one if its owner is gone.
// Returns ErrHeld (wrapped) when a live owner exists.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if err := l.create(); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	stale, holder := l.checkStale()
	if !stale {
		return fmt.Errorf("%w: %s", ErrHeld, holder)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale lock: %w", err)
	}
	if err := l.create(); err != nil {
		return fmt.Errorf("failed to take over stale lock: %w", err)
	}
	return nil
}

// create opens the lock file exclusively and stamps it with our PID and
// the current time.
func (l *Lock) create() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	content := fmt.Sprintf("%d\n%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(l.path)
		return fmt.Errorf("failed to sync lock file: %w", err)
	}
	l.file = file
	return nil
}

// checkStale decides whether the existing lock can be broken. Unreadable
// or malformed locks count as stale; so do locks whose owner is gone or
// whose stamp is past staleAfter.
func (l *Lock) checkStale() (stale bool, holder string) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return true, ""
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return true, ""
	}
	if !processAlive(pid) {
		return true, ""
	}
	if len(lines) >= 2 {
		if stamp, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[1])); err == nil {
			if time.Since(stamp) > staleAfter {
				return true, ""
			}
		}
	}
	return false, fmt.Sprintf("pid %d", pid)
}

// Release drops the lock. Safe to call when the lock was never acquired.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	closeErr := l.file.Close()
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return closeErr
}
