package ports

import (
	"context"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// RunStore persists one run document per run id.
// This is the durable backbone that lets a run survive process restarts.
type RunStore interface {
	// Save persists the full document for a run id, replacing any previous one.
	// Implementations must never leave a partially written document visible.
	Save(ctx context.Context, runID string, state *domain.RunState) error

	// Load retrieves the document for a run id.
	// Returns domain.ErrRunNotFound if the run does not exist or cannot be decoded.
	Load(ctx context.Context, runID string) (*domain.RunState, error)

	// Delete removes the document for a run id. Deleting a missing run is not an error.
	Delete(ctx context.Context, runID string) error

	// List returns the ids of every stored run.
	List(ctx context.Context) ([]string, error)
}
