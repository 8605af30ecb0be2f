package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

const docExt = ".json"

// Store implements ports.RunStore using the local filesystem.
// It stores runs as JSON files in a configured directory.
type Store struct {
	BasePath string
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report unreadable documents.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".silvan/runs".
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = filepath.Join(".silvan", "runs")
	}
	s := &Store{BasePath: basePath, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) path(runID string) string {
	return filepath.Join(s.BasePath, runID+docExt)
}

// Save persists the run document atomically.
func (s *Store) Save(ctx context.Context, runID string, state *domain.RunState) error {
	if err := domain.ValidateRunID(runID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	if err := WriteAtomic(s.path(runID), data); err != nil {
		return &domain.Error{Kind: domain.KindTransient, Op: "store.save", Message: "failed to persist run " + runID, Err: err}
	}
	return nil
}

// Load retrieves the run document from its JSON file.
// A missing or corrupt document is reported as domain.ErrRunNotFound so callers
// can always fall back to treating the run as fresh.
func (s *Store) Load(ctx context.Context, runID string) (*domain.RunState, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrRunNotFound
		}
		s.logger.Warn("run document unreadable", "run_id", runID, "error", err)
		return nil, notFound(runID, err)
	}

	state, err := domain.UnmarshalDocument(data)
	if err != nil {
		s.logger.Warn("run document corrupt", "run_id", runID, "error", err)
		return nil, notFound(runID, err)
	}
	return state, nil
}

func notFound(runID string, cause error) error {
	return &domain.Error{
		Kind:    domain.KindNotFound,
		Op:      "store.load",
		Message: "run not found",
		Details: map[string]any{"runId": runID, "corrupt": true},
		Err:     cause,
	}
}

// Delete removes the run file.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if err := domain.ValidateRunID(runID); err != nil {
		return err
	}

	err := os.Remove(s.path(runID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete run file: %w", err)
	}
	return nil
}

// List returns all stored run IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != docExt || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		runs = append(runs, strings.TrimSuffix(name, docExt))
	}
	sort.Strings(runs)
	return runs, nil
}
