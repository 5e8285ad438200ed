// Package locking implements the engine's concurrency primitives: a
// cross-process FileLock bounded by a timeout, and an in-process
// ToolMutex serializing store and LLM-port access.
package locking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

// DefaultTimeout is the bound used by FileLock.Acquire when the caller
// does not supply its own context deadline.
const DefaultTimeout = 5 * time.Second

// pollInterval is how often Acquire retries TryLock while waiting for
// the bound. flock has no native deadline support, so the wait is a
// polling loop.
const pollInterval = 50 * time.Millisecond

// FileLock provides cross-process advisory locking via gofrs/flock.
// A holder-token file is written alongside the lock file so a peer
// that fails to acquire the lock can report who holds it.
type FileLock struct {
	path      string
	tokenPath string
	flock     *flock.Flock
	locked    bool
}

// New creates a FileLock for the given resource name inside dir. The
// lock file is created at <dir>/.<name>.lock.
func New(dir, name string) *FileLock {
	lockPath := filepath.Join(dir, "."+name+".lock")
	return &FileLock{
		path:      lockPath,
		tokenPath: lockPath + ".holder",
		flock:     flock.New(lockPath),
	}
}

// Acquire attempts to take the lock within ctx's deadline, polling
// TryLock at pollInterval. If ctx carries no deadline, DefaultTimeout
// is applied. Returns a KernelError of kind LOCKED, with the current
// holder's token attached as a detail, if the bound expires first.
func (l *FileLock) Acquire(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return kerrors.Wrap(kerrors.KindRuntime, err, "create lock directory")
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.flock.TryLock()
		if err != nil {
			return kerrors.Wrap(kerrors.KindRuntime, err, "acquire lock %s", l.path)
		}
		if acquired {
			l.locked = true
			l.writeHolderToken()
			return nil
		}

		select {
		case <-ctx.Done():
			holder := l.readHolderToken()
			ke := kerrors.Locked(l.path, ctx.Err())
			if holder != "" {
				ke.WithDetail("holder", holder)
			}
			return ke
		case <-ticker.C:
		}
	}
}

// TryAcquire attempts to take the lock without blocking.
func (l *FileLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, kerrors.Wrap(kerrors.KindRuntime, err, "create lock directory")
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, kerrors.Wrap(kerrors.KindRuntime, err, "acquire lock %s", l.path)
	}
	if acquired {
		l.locked = true
		l.writeHolderToken()
	}
	return acquired, nil
}

// Release releases the lock and removes the holder token. Safe to
// call multiple times or when not locked.
func (l *FileLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	_ = os.Remove(l.tokenPath)
	if err := l.flock.Unlock(); err != nil {
		return kerrors.Wrap(kerrors.KindRuntime, err, "release lock %s", l.path)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked reports whether this handle currently holds the lock.
func (l *FileLock) IsLocked() bool {
	return l.locked
}

// Holder returns the token of the current lock holder, if any token
// file is present. Used to surface "locked by pid N since T" detail
// in LOCKED errors.
func (l *FileLock) Holder() string {
	return l.readHolderToken()
}

func (l *FileLock) writeHolderToken() {
	token := fmt.Sprintf("pid=%d since=%s", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_ = os.WriteFile(l.tokenPath, []byte(token), 0o644)
}

func (l *FileLock) readHolderToken() string {
	data, err := os.ReadFile(l.tokenPath)
	if err != nil {
		return ""
	}
	return string(data)
}
