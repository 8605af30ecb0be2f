package silvan_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	silvan "github.com/stevekinney/silvan-sub003"
	"github.com/stevekinney/silvan-sub003/pkg/adapters/memory"
	"github.com/stevekinney/silvan-sub003/pkg/convergence"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/observability"
	"github.com/stevekinney/silvan-sub003/pkg/persistence/middleware"
	"github.com/stevekinney/silvan-sub003/pkg/runner"
	"github.com/stevekinney/silvan-sub003/pkg/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func openWorkspace(t *testing.T, opts ...silvan.Option) *silvan.Workspace {
	t.Helper()
	layout, err := statestore.NewLayout(statestore.ModeRepo, t.TempDir(), "")
	require.NoError(t, err)

	base := []silvan.Option{
		silvan.WithLocker(memory.NewLocker()),
		silvan.WithFs(afero.NewMemMapFs()),
		silvan.WithClock(func() time.Time { return epoch }),
	}
	ws, err := silvan.Open(context.Background(), layout, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close(context.Background()) })
	return ws
}

func startRun(t *testing.T, ws *silvan.Workspace) (string, *runner.Runner) {
	t.Helper()
	id := ws.NewRunID()
	r := ws.Runner(id)
	_, err := r.Start(context.Background(), "implement")
	require.NoError(t, err)
	return id, r
}

func TestWorkspace_OverrideClearsLocalGate(t *testing.T) {
	ctx := context.Background()
	ws := openWorkspace(t, silvan.WithBackend(memory.NewStore()))
	id, r := startRun(t, ws)

	_, err := r.UpdateState(ctx, func(d *domain.RunData) error {
		d.LocalGateSummary = &domain.LocalGateSummary{Blockers: 2}
		return nil
	})
	require.NoError(t, err)

	conv, err := ws.Convergence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ConvergenceWaitingForUser, conv.Status)

	_, err = ws.Override(ctx, id, "  ", "sam")
	require.Error(t, err)

	entry, err := ws.Override(ctx, id, "flaky lint rule", "sam")
	require.NoError(t, err)
	assert.Equal(t, silvan.OperatorStep, entry.StepID)
	assert.Equal(t, domain.ArtifactOverrides, entry.Name)

	conv, err = ws.Convergence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ConvergenceRunning, conv.Status)
	assert.Equal(t, convergence.ReasonInProgress, conv.ReasonCode)
}

func TestWorkspace_Abort(t *testing.T) {
	ctx := context.Background()
	ws := openWorkspace(t, silvan.WithBackend(memory.NewStore()))
	id, _ := startRun(t, ws)

	require.NoError(t, ws.Abort(ctx, id, "wrong branch", "sam"))

	st, err := ws.Inspect(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCanceled, st.Data.Run.Status)

	conv, err := ws.Convergence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ConvergenceAborted, conv.Status)
	assert.Equal(t, convergence.ReasonAborted, conv.ReasonCode)
	require.Len(t, conv.BlockingArtifacts, 1)
	assert.Equal(t, domain.ArtifactAbort, conv.BlockingArtifacts[0].Name)

	// Aborting again only re-records the artifact.
	require.NoError(t, ws.Abort(ctx, id, "still wrong", "sam"))

	err = ws.Abort(ctx, "missing", "x", "")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestWorkspace_AnalyzeAndArtifacts(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics()
	ws := openWorkspace(t, silvan.WithBackend(memory.NewStore()), silvan.WithMetrics(metrics))
	id, r := startRun(t, ws)

	_, err := r.RunStep(ctx, "plan", "Plan", func(context.Context) (any, error) {
		return map[string]any{"steps": 3}, nil
	}, runner.WithArtifactsFn(func(result any) map[string]any {
		return map[string]any{"plan": result, "notes": "keep it small"}
	}))
	require.NoError(t, err)

	report, err := ws.Analyze(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, report.State.Data.Run.Status)
	assert.Equal(t, domain.ConvergenceRunning, report.Convergence.Status)
	require.Contains(t, report.Summary.Steps, "plan")
	assert.Equal(t, 1, report.Summary.Steps["plan"].Succeeded)
	assert.Empty(t, report.Findings)

	entry, data, err := ws.Artifact(ctx, id, "plan", "notes")
	require.NoError(t, err)
	assert.Equal(t, domain.ArtifactText, entry.Kind)
	assert.Equal(t, "keep it small", string(data))

	_, _, err = ws.Artifact(ctx, id, "plan", "missing")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	ids, err := ws.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
	assert.Same(t, metrics, ws.Metrics())
}

func TestWorkspace_EncryptedBackend(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	key := bytes.Repeat([]byte{7}, 32)
	ws := openWorkspace(t,
		silvan.WithBackend(backend),
		silvan.WithMiddleware(middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})),
	)
	id, r := startRun(t, ws)

	_, err := r.UpdateState(ctx, func(d *domain.RunData) error {
		d.Summary = &domain.Summary{BlockedReason: "needs a product decision"}
		return nil
	})
	require.NoError(t, err)

	raw, err := backend.Load(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, raw.Data.Extra, middleware.EnvelopeKey)
	assert.Nil(t, raw.Data.Summary)

	conv, err := ws.Convergence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ConvergenceBlocked, conv.Status)
	assert.Equal(t, "needs a product decision", conv.Message)
}
