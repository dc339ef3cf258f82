// Package lock serializes refresh sweeps, in process or across instances.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock is held")

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out at most one lease at a time. Acquire never blocks waiting
// for the current holder; it fails with ErrLocked instead.
type Locker interface {
	Acquire(ctx context.Context) (Lease, error)
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu sync.Mutex
}

var _ Locker = (*LocalLocker)(nil)

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(ctx context.Context) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.mu.TryLock() {
		return nil, ErrLocked
	}
	return &localLease{unlock: l.mu.Unlock}, nil
}

type localLease struct {
	once   sync.Once
	unlock func()
}

func (l *localLease) Release(context.Context) error {
	l.once.Do(l.unlock)
	return nil
}
