// Package fslock serializes store mutations across OS processes using an
// advisory file lock. The kernel drops the lock when its holder exits, so a
// crashed process can never permanently deadlock the store.
package fslock

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned by Acquire when the lock could not be obtained
// within the timeout. Callers may retry or report contention.
var ErrLockTimeout = errors.New("timed out waiting for store lock")

const retryDelay = 25 * time.Millisecond

// Lock is a named cross-process mutex backed by a lock file.
type Lock struct {
	fl   *flock.Flock
	path string
}

// New creates a lock for the given resource name inside dir. The resource
// name is sanitized so arbitrary identifiers (store paths, URLs) yield a
// valid file name.
func New(dir, resource string) *Lock {
	path := filepath.Join(dir, sanitize(resource)+".lock")
	return &Lock{fl: flock.New(path), path: path}
}

// sanitize strips characters that are illegal in file names on any supported
// platform, keeping the result stable for a given input.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '-'
		}
		return r
	}, name)
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// TryAcquire attempts to take the lock, retrying until the timeout elapses.
// It reports whether the lock was obtained.
func (l *Lock) TryAcquire(timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := l.fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	return locked, nil
}

// Acquire is TryAcquire, but a miss is surfaced as ErrLockTimeout.
func (l *Lock) Acquire(timeout time.Duration) error {
	locked, err := l.TryAcquire(timeout)
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("%w (after %s)", ErrLockTimeout, timeout)
	}
	return nil
}

// Release unlocks the lock. It is idempotent: releasing a lock that is not
// held is a no-op, so it is safe in deferred cleanup on every exit path.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

// Locked reports whether this process currently holds the lock.
func (l *Lock) Locked() bool {
	return l.fl.Locked()
}
