package cli

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	silvan "github.com/stevekinney/silvan-sub003"
	"github.com/stevekinney/silvan-sub003/internal/config"
	"github.com/stevekinney/silvan-sub003/pkg/adapters/file"
	"github.com/stevekinney/silvan-sub003/pkg/adapters/memory"
	"github.com/stevekinney/silvan-sub003/pkg/adapters/redis"
	"github.com/stevekinney/silvan-sub003/pkg/persistence/middleware"
	"github.com/stevekinney/silvan-sub003/pkg/statestore"
)

// PreviousKeysSuffix names the variable holding retired encryption keys,
// comma separated, next to the active key variable.
const PreviousKeysSuffix = "_PREVIOUS"

// backendOptions selects the run document backend and locker configured in cfg.
// The returned closer releases backend connections.
func backendOptions(cfg config.Config, layout statestore.Layout, logger *slog.Logger) ([]silvan.Option, func() error, error) {
	noop := func() error { return nil }
	ttl := silvan.WithStoreOptions(statestore.WithLockTTL(cfg.State.Lock.TTL))
	switch cfg.State.Backend {
	case "", "file":
		return []silvan.Option{
			ttl,
			silvan.WithLocker(file.NewLocker(layout.Locks,
				file.WithRetries(cfg.State.Lock.Retries),
				file.WithRetryDelay(cfg.State.Lock.RetryDelay),
			)),
		}, noop, nil
	case "memory":
		// Nothing outside this process can see the documents.
		return []silvan.Option{
			silvan.WithBackend(memory.NewStore()),
			silvan.WithStoreOptions(statestore.WithoutLock()),
		}, noop, nil
	case "redis":
		var storeOpts []redis.Option
		prefix := redis.DefaultPrefix
		if cfg.Redis.Prefix != "" {
			prefix = cfg.Redis.Prefix
			storeOpts = append(storeOpts, redis.WithPrefix(prefix))
		}
		if cfg.Redis.TTL > 0 {
			storeOpts = append(storeOpts, redis.WithTTL(cfg.Redis.TTL))
		}
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, storeOpts...)
		locker := redis.NewLocker(store.Client(), prefix+"lock:",
			redis.WithLockRetries(cfg.State.Lock.Retries),
			redis.WithLockRetryDelay(cfg.State.Lock.RetryDelay),
		)
		logger.Debug("using redis backend", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return []silvan.Option{ttl, silvan.WithBackend(store), silvan.WithLocker(locker)}, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

// EncryptionConfig reads the base64 AES-256 key from the variable named env and
// any retired keys from env+PreviousKeysSuffix. ok is false when env is unset or empty.
func EncryptionConfig(getenv func(string) string, env string) (cfg middleware.EncryptionConfig, ok bool, err error) {
	if env == "" || getenv(env) == "" {
		return middleware.EncryptionConfig{}, false, nil
	}
	active, err := decodeKey(getenv(env))
	if err != nil {
		return middleware.EncryptionConfig{}, false, fmt.Errorf("%s: %w", env, err)
	}
	cfg.ActiveKey = active

	for _, raw := range strings.Split(getenv(env+PreviousKeysSuffix), ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		key, err := decodeKey(raw)
		if err != nil {
			return middleware.EncryptionConfig{}, false, fmt.Errorf("%s%s: %w", env, PreviousKeysSuffix, err)
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, key)
	}
	return cfg, true, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
