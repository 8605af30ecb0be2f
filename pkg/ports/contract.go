package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs a suite of tests to verify that a RunStore implementation
// adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store RunStore) {
	t.Helper()
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405.000000000")
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewRunState(runID, "plan", now)
		state.Data.Run.Attempt = 3
		state.Data.LocalGateSummary = &domain.LocalGateSummary{Blockers: 2}
		state.Step("plan").Status = domain.StepDone
		state.IndexArtifact(domain.ArtifactEntry{StepID: "plan", Name: "plan", Digest: "sha256:abc", Kind: domain.ArtifactJSON})

		require.NoError(t, store.Save(ctx, runID, state), "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, runID, loaded.RunID)
		assert.Equal(t, domain.DocumentVersion, loaded.Version)
		assert.Equal(t, 3, loaded.Data.Run.Attempt)
		assert.Equal(t, domain.StepDone, loaded.Data.Steps["plan"].Status)
		require.NotNil(t, loaded.Data.LocalGateSummary)
		assert.Equal(t, 2, loaded.Data.LocalGateSummary.Blockers)
		assert.Equal(t, "sha256:abc", loaded.Data.ArtifactsIndex["plan"]["plan"].Digest)

		want, err := domain.Digest(state)
		require.NoError(t, err)
		got, err := domain.Digest(loaded)
		require.NoError(t, err)
		assert.Equal(t, want, got, "document should round-trip byte-for-byte")
	})

	t.Run("Save Isolates Caller", func(t *testing.T) {
		state := domain.NewRunState(runID+"-iso", "plan", now)
		require.NoError(t, store.Save(ctx, state.RunID, state))
		state.Data.Run.Phase = "mutated"

		loaded, err := store.Load(ctx, state.RunID)
		require.NoError(t, err)
		assert.Equal(t, "plan", loaded.Data.Run.Phase)
		_ = store.Delete(ctx, state.RunID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runID, domain.NewRunState(runID, "plan", now)))

		require.NoError(t, store.Delete(ctx, runID), "Delete should not return error")

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")

		assert.NoError(t, store.Delete(ctx, runID), "Delete of a missing run should be a no-op")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewRunState(id1, "plan", now)))
		require.NoError(t, store.Save(ctx, id2, domain.NewRunState(id2, "plan", now)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
