package filelock

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// LockSuffix is appended to a path to name its lock file.
const LockSuffix = ".lock"

// DefaultRetryDelay is the polling interval while waiting for a lock file.
const DefaultRetryDelay = 10 * time.Millisecond

// Release ends a hold taken with Acquire.
type Release func() error

// Acquire holds path in mode both in t and through an advisory lock file, so
// other processes using the same directory are excluded as well.
func (t *Table) Acquire(ctx context.Context, path string, mode Mode) (Release, error) {
	t.BeginLock(path, mode)

	fl := flock.New(path + LockSuffix)
	var (
		locked bool
		err    error
	)
	if mode == Write {
		locked, err = fl.TryLockContext(ctx, DefaultRetryDelay)
	} else {
		locked, err = fl.TryRLockContext(ctx, DefaultRetryDelay)
	}
	if err != nil || !locked {
		t.EndLock(path, mode)
		if err == nil {
			err = fmt.Errorf("lock file %s not acquired", fl.Path())
		}
		return nil, fmt.Errorf("filelock: %s %s: %w", mode, path, err)
	}

	return func() error {
		defer t.EndLock(path, mode)
		return fl.Unlock()
	}, nil
}

// AcquireExisting is Acquire for a path that must already exist. When it does
// not, ok is false and no lock file is created.
func (t *Table) AcquireExisting(ctx context.Context, path string, mode Mode) (release Release, ok bool, err error) {
	if _, err := os.Stat(path); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("filelock: %s %s: %w", mode, path, err)
	}
	release, err = t.Acquire(ctx, path, mode)
	if err != nil {
		return nil, false, err
	}
	return release, true, nil
}
