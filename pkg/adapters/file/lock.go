package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/ports"
)

// Locker implements ports.Locker with advisory file locks.
// The OS drops the lock when the holding process dies, so ttl is not needed
// and is ignored.
type Locker struct {
	dir        string
	retries    int
	retryDelay time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithRetries sets how many extra attempts are made after the first one fails.
func WithRetries(n int) LockerOption {
	return func(l *Locker) {
		l.retries = n
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) LockerOption {
	return func(l *Locker) {
		l.retryDelay = d
	}
}

// NewLocker creates a Locker that keeps its lock files in dir.
func NewLocker(dir string, opts ...LockerOption) *Locker {
	l := &Locker{
		dir:        dir,
		retries:    20,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires the lock for key, retrying a bounded number of times.
func (l *Locker) Lock(ctx context.Context, key string, _ time.Duration) (ports.UnlockFunc, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure lock directory: %w", err)
	}
	path := filepath.Join(l.dir, key+".lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	for attempt := 0; ; attempt++ {
		ok, err := tryLock(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if ok {
			break
		}
		if attempt >= l.retries {
			_ = f.Close()
			return nil, &domain.Error{
				Kind:    domain.KindTransient,
				Op:      "lock.acquire",
				Message: domain.ErrLockTimeout.Message,
				Details: map[string]any{"path": path, "attempts": attempt + 1},
				Err:     domain.ErrLockTimeout,
			}
		}

		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = f.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			if uerr := unlock(f); uerr != nil {
				err = fmt.Errorf("failed to unlock %s: %w", path, uerr)
			}
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		})
		return err
	}, nil
}
