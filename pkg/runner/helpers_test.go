package runner_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stevekinney/silvan-sub003/pkg/adapters/memory"
	"github.com/stevekinney/silvan-sub003/pkg/artifacts"
	"github.com/stevekinney/silvan-sub003/pkg/audit"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/runner"
	"github.com/stevekinney/silvan-sub003/pkg/statestore"
	"github.com/stevekinney/silvan-sub003/pkg/transcript"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	store      *statestore.Store
	audit      *audit.Log
	artifacts  *artifacts.Store
	transcript *transcript.Transcript
	clock      *clock
	runner     *runner.Runner
}

func newEnv(t *testing.T, opts ...runner.Option) *env {
	t.Helper()
	layout, err := statestore.NewLayout(statestore.ModeRepo, t.TempDir(), "")
	require.NoError(t, err)
	store, err := statestore.Open(context.Background(), layout,
		statestore.WithBackend(memory.NewStore()),
		statestore.WithLocker(memory.NewLocker()),
	)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	c := &clock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	e := &env{
		store:      store,
		audit:      audit.New("/audit", audit.WithFs(fs)),
		artifacts:  artifacts.New("/artifacts", artifacts.WithFs(fs), artifacts.WithClock(c.Now)),
		transcript: transcript.New("/conv", transcript.WithFs(fs)),
		clock:      c,
	}
	base := []runner.Option{
		runner.WithAudit(e.audit),
		runner.WithArtifacts(e.artifacts),
		runner.WithTranscript(e.transcript),
		runner.WithClock(c.Now),
	}
	e.runner = runner.New("run-1", store, append(base, opts...)...)
	return e
}

func (e *env) events(t *testing.T) []domain.Event {
	t.Helper()
	events, err := e.audit.Read(context.Background(), "run-1")
	require.NoError(t, err)
	return events
}

func (e *env) state(t *testing.T) *domain.RunState {
	t.Helper()
	st, err := e.store.Read(context.Background(), "run-1")
	require.NoError(t, err)
	return st
}

func stepStatuses(events []domain.Event, stepID string) []string {
	var out []string
	for _, ev := range events {
		if id, status, ok := audit.StepPayload(ev); ok && id == stepID {
			out = append(out, status)
		}
	}
	return out
}
