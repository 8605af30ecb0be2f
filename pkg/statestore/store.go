package statestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/adapters/file"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/ports"
)

// ErrNoChange may be returned by an Update function to skip the write.
var ErrNoChange = errors.New("no change")

const bootstrapKey = "store"

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// UpdateResult describes a completed Update.
type UpdateResult struct {
	State  *domain.RunState
	Digest string
	// Diff is nil when nothing changed.
	Diff *domain.StateDiff
}

// Store is the run-state store: one document per run plus the side directories
// every other component writes into.
// It serializes read-modify-write per run id within the process and uses
// Reference Counting to garbage collect unused per-run locks.
type Store struct {
	layout  Layout
	backend ports.RunStore
	locker  ports.Locker
	logger  *slog.Logger

	lockTTL   time.Duration
	exclusive bool
	noLock    bool
	unlock    ports.UnlockFunc

	mu    sync.Mutex
	locks map[string]*lockEntry
}

// Option configures the Store.
type Option func(*Store)

// WithBackend replaces the default file backend.
func WithBackend(backend ports.RunStore) Option {
	return func(s *Store) {
		s.backend = backend
	}
}

// WithLocker replaces the default file locker used for bootstrap.
func WithLocker(locker ports.Locker) Option {
	return func(s *Store) {
		s.locker = locker
	}
}

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithLockTTL sets the TTL passed to lockers that support expiry.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.lockTTL = ttl
	}
}

// WithExclusive keeps the store lock until Close instead of releasing it after bootstrap.
func WithExclusive() Option {
	return func(s *Store) {
		s.exclusive = true
	}
}

// WithoutLock skips the bootstrap lock entirely.
func WithoutLock() Option {
	return func(s *Store) {
		s.noLock = true
	}
}

// DefaultBackend returns the file backend that stores run documents under layout.Runs.
func DefaultBackend(layout Layout, logger *slog.Logger) ports.RunStore {
	return file.New(layout.Runs, file.WithLogger(logger))
}

// Open bootstraps the store directories under the store lock.
// Failing to acquire the lock within the locker's retry budget is fatal.
func Open(ctx context.Context, layout Layout, opts ...Option) (*Store, error) {
	s := &Store{
		layout:  layout,
		logger:  logging.NewNop(),
		lockTTL: 30 * time.Second,
		locks:   make(map[string]*lockEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backend == nil {
		s.backend = DefaultBackend(layout, s.logger)
	}
	if s.locker == nil {
		s.locker = file.NewLocker(layout.Locks)
	}

	if !s.noLock {
		unlock, err := s.locker.Lock(ctx, bootstrapKey, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire store lock: %w", err)
		}
		s.unlock = unlock
	}

	if err := s.bootstrap(); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	if !s.exclusive {
		if err := s.releaseLock(ctx); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("state store opened", "root", layout.Root, "mode", layout.Mode)
	return s, nil
}

func (s *Store) bootstrap() error {
	for _, dir := range s.layout.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &domain.Error{Kind: domain.KindTransient, Op: "store.bootstrap", Message: "failed to create " + dir, Err: err}
		}
	}
	return nil
}

func (s *Store) releaseLock(ctx context.Context) error {
	if s.unlock == nil {
		return nil
	}
	unlock := s.unlock
	s.unlock = nil
	if err := unlock(ctx); err != nil {
		return fmt.Errorf("failed to release store lock: %w", err)
	}
	return nil
}

// Close releases the store lock if it is still held. It is safe to call twice.
func (s *Store) Close(ctx context.Context) error {
	return s.releaseLock(context.WithoutCancel(ctx))
}

// Layout returns the resolved directories.
func (s *Store) Layout() Layout {
	return s.layout
}

// Backend returns the underlying run store.
func (s *Store) Backend() ports.RunStore {
	return s.backend
}

func (s *Store) acquire(runID string) *lockEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.locks[runID]
	if !exists {
		entry = &lockEntry{}
		s.locks[runID] = entry
	}
	entry.refs++
	return entry
}

func (s *Store) release(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.locks[runID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(s.locks, runID)
	}
}

func (s *Store) withRun(runID string, fn func() error) error {
	entry := s.acquire(runID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		s.release(runID)
	}()
	return fn()
}

// Read returns the document for runID, or domain.ErrRunNotFound.
func (s *Store) Read(ctx context.Context, runID string) (*domain.RunState, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	return s.backend.Load(ctx, runID)
}

// Write replaces the document for runID and returns its digest.
func (s *Store) Write(ctx context.Context, runID string, state *domain.RunState) (string, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return "", err
	}
	var digest string
	err := s.withRun(runID, func() error {
		var err error
		digest, err = s.save(ctx, runID, state)
		return err
	})
	return digest, err
}

func (s *Store) save(ctx context.Context, runID string, state *domain.RunState) (string, error) {
	if state.Version == "" {
		state.Version = domain.DocumentVersion
	}
	if state.RunID == "" {
		state.RunID = runID
	}
	if err := s.backend.Save(ctx, runID, state); err != nil {
		return "", err
	}
	return domain.Digest(state)
}

// Update applies fn to the current document and persists the result.
// It is atomic relative to other callers in this process; across processes the
// one-process-per-run assumption applies. If fn returns ErrNoChange the document
// is left untouched and the result carries the current state with a nil Diff.
func (s *Store) Update(ctx context.Context, runID string, fn func(*domain.RunState) error) (UpdateResult, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return UpdateResult{}, err
	}
	var res UpdateResult
	err := s.withRun(runID, func() error {
		current, err := s.backend.Load(ctx, runID)
		if err != nil {
			return err
		}
		next, err := current.Clone()
		if err != nil {
			return err
		}

		if err := fn(next); err != nil {
			if errors.Is(err, ErrNoChange) {
				res.State = current
				res.Digest, err = domain.Digest(current)
				return err
			}
			return err
		}

		digest, err := s.save(ctx, runID, next)
		if err != nil {
			return err
		}
		res = UpdateResult{State: next, Digest: digest, Diff: domain.Diff(current, next)}
		return nil
	})
	return res, err
}

// List returns every stored run id.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.backend.List(ctx)
}
