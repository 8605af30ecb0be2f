package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "silvan:run:"

// farFuture is the index score for documents without a TTL.
const farFuture = 4102444800 // 2100-01-01

// Store implements ports.RunStore using Redis.
// Each document is a single string value, so a SET replaces it atomically.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for run documents. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for run documents.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client so a Locker can share the connection pool.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the document and records it in the run index.
func (s *Store) Save(ctx context.Context, runID string, state *domain.RunState) error {
	data, err := domain.MarshalDocument(state)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = farFuture
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(runID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: runID})

	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.Error{Kind: domain.KindTransient, Op: "store.save", Message: "failed to save to redis", Err: err}
	}
	return nil
}

// Load retrieves the document. Missing or undecodable values are reported as not found.
func (s *Store) Load(ctx context.Context, runID string) (*domain.RunState, error) {
	val, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	state, err := domain.UnmarshalDocument(val)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindNotFound, Op: "store.load", Message: "run not found", Err: err}
	}
	return state, nil
}

// Delete removes the document and its index entry.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns live run ids, pruning index entries whose TTL has passed.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired runs: %w", err)
	}

	runs, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
