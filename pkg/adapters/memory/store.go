package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Store implements ports.RunStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save keeps the serialized document, so later caller mutations do not leak in.
func (s *Store) Save(ctx context.Context, runID string, state *domain.RunState) error {
	raw, err := domain.MarshalDocument(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[runID] = raw
	return nil
}

// Load decodes a fresh copy of the stored document.
func (s *Store) Load(ctx context.Context, runID string) (*domain.RunState, error) {
	s.mu.RLock()
	raw, ok := s.data[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrRunNotFound
	}
	state, err := domain.UnmarshalDocument(raw)
	if err != nil {
		return nil, domain.ErrRunNotFound
	}
	return state, nil
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns stored run ids, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, 0, len(s.data))
	for id := range s.data {
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, nil
}
