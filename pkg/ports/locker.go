package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a lock.
type UnlockFunc func(ctx context.Context) error

// Locker defines cooperative mutual exclusion over a named key.
// The state store uses it to guard directory bootstrap across processes.
type Locker interface {
	// Lock attempts to acquire the lock for the given key.
	// It retries until the lock is acquired, the context is canceled, or the
	// implementation's retry budget is exhausted (domain.ErrLockTimeout).
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
