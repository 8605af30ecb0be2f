package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/ports"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker implements ports.Locker using Redis SET NX PX.
type Locker struct {
	client     *backend.Client
	prefix     string
	retries    int
	retryDelay time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockRetries bounds the number of extra attempts. Negative retries forever.
func WithLockRetries(n int) LockerOption {
	return func(l *Locker) {
		l.retries = n
	}
}

// WithLockRetryDelay sets the pause between attempts.
func WithLockRetryDelay(d time.Duration) LockerOption {
	return func(l *Locker) {
		l.retryDelay = d
	}
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string, opts ...LockerOption) *Locker {
	l := &Locker{
		client:     client,
		prefix:     prefix,
		retries:    -1,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires the lock for key. The lock expires after ttl if never released.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := ulid.Make().String()

	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err()
			}, nil
		}

		if l.retries >= 0 && attempt >= l.retries {
			return nil, &domain.Error{
				Kind:    domain.KindTransient,
				Op:      "lock.acquire",
				Message: domain.ErrLockTimeout.Message,
				Details: map[string]any{"key": lockKey, "attempts": attempt + 1},
				Err:     domain.ErrLockTimeout,
			}
		}

		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
