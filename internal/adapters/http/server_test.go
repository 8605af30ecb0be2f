package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	silvan "github.com/stevekinney/silvan-sub003"
	api "github.com/stevekinney/silvan-sub003/internal/adapters/http"
	"github.com/stevekinney/silvan-sub003/pkg/adapters/memory"
	"github.com/stevekinney/silvan-sub003/pkg/artifacts"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/observability"
	"github.com/stevekinney/silvan-sub003/pkg/runner"
	"github.com/stevekinney/silvan-sub003/pkg/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ws      *silvan.Workspace
	runID   string
	handler http.Handler
	cache   *artifacts.PreviewCache
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	layout, err := statestore.NewLayout(statestore.ModeRepo, t.TempDir(), "")
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	ws, err := silvan.Open(ctx, layout,
		silvan.WithBackend(memory.NewStore()),
		silvan.WithLocker(memory.NewLocker()),
		silvan.WithFs(afero.NewMemMapFs()),
		silvan.WithMetrics(metrics),
		silvan.WithClock(func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)

	runID := ws.NewRunID()
	r := ws.Runner(runID)
	_, err = r.Start(ctx, "verify")
	require.NoError(t, err)
	_, err = r.RunStep(ctx, "lint", "Lint", func(context.Context) (any, error) {
		return "3 warnings", nil
	}, runner.WithArtifactsFn(func(result any) map[string]any {
		return map[string]any{"report": result}
	}))
	require.NoError(t, err)

	cache := artifacts.NewPreviewCache(ws.Artifacts(), 4)
	return &fixture{
		ws:    ws,
		runID: runID,
		cache: cache,
		handler: api.NewHandler(ws,
			api.WithPreviews(cache),
			api.WithMetrics(metrics.Handler()),
		),
	}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := setup(t)
	rec := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListRuns(t *testing.T) {
	f := setup(t)
	rec := f.get(t, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []api.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, f.runID, runs[0].RunID)
	assert.Equal(t, domain.RunRunning, runs[0].Status)
	assert.Equal(t, "verify", runs[0].Phase)
	assert.Equal(t, domain.ConvergenceRunning, runs[0].Convergence)
}

func TestGetRunAndConvergence(t *testing.T) {
	f := setup(t)

	rec := f.get(t, "/runs/"+f.runID)
	require.Equal(t, http.StatusOK, rec.Code)
	var st domain.RunState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, domain.StepDone, st.Data.Steps["lint"].Status)

	require.NoError(t, f.ws.Abort(context.Background(), f.runID, "not needed", "ops"))
	rec = f.get(t, "/runs/"+f.runID+"/convergence")
	require.Equal(t, http.StatusOK, rec.Code)
	var conv domain.RunConvergence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, domain.ConvergenceAborted, conv.Status)
}

func TestNotFound(t *testing.T) {
	f := setup(t)
	for _, path := range []string{
		"/runs/nope",
		"/runs/nope/convergence",
		"/runs/nope/events",
		"/runs/nope/artifacts/lint/report",
	} {
		t.Run(path, func(t *testing.T) {
			rec := f.get(t, path)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Contains(t, rec.Body.String(), `"kind":"not_found"`)
		})
	}
}

func TestInvalidRunID(t *testing.T) {
	f := setup(t)
	for _, path := range []string{"/runs/a..b", "/runs/a..b/events"} {
		rec := f.get(t, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"kind":"invariant"`)
	}
}

func TestGetEvents_Filters(t *testing.T) {
	f := setup(t)

	rec := f.get(t, "/runs/"+f.runID+"/events")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []domain.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.NotEmpty(t, all)

	rec = f.get(t, "/runs/"+f.runID+"/events?type=run.step")
	require.Equal(t, http.StatusOK, rec.Code)
	var steps []domain.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	require.Len(t, steps, 2)
	for _, ev := range steps {
		assert.Equal(t, domain.EventRunStep, ev.Type)
	}
	assert.Less(t, len(steps), len(all))
}

func TestGetArtifact(t *testing.T) {
	f := setup(t)

	rec := f.get(t, "/runs/"+f.runID+"/artifacts/lint/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3 warnings", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.NotEmpty(t, rec.Header().Get("X-Artifact-Digest"))

	rec = f.get(t, "/runs/"+f.runID+"/artifacts/lint/report?preview=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3 wa…", rec.Body.String())
	assert.Equal(t, 1, f.cache.Loads())

	f.get(t, "/runs/"+f.runID+"/artifacts/lint/report?preview=true")
	assert.Equal(t, 1, f.cache.Loads())

	rec = f.get(t, "/runs/"+f.runID+"/artifacts/lint/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	f := setup(t)
	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "silvan_steps_finished_total")
}
