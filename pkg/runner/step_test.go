package runner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plan struct {
	Steps []string `json:"steps"`
}

func TestRunStep_Success(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.runner.Start(ctx, "plan")
	require.NoError(t, err)

	out, err := e.runner.RunStep(ctx, "plan.generate", "Generate plan", func(ctx context.Context) (any, error) {
		e.clock.Advance(3 * time.Second)
		return plan{Steps: []string{"a", "b"}}, nil
	},
		runner.WithInputs(map[string]string{"ticket": "T-1"}),
		runner.WithArtifactsFn(func(result any) map[string]any {
			return map[string]any{"plan": result, "notes": "two steps"}
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, plan{Steps: []string{"a", "b"}}, out)

	st := e.state(t)
	assert.Equal(t, 1, st.Data.Run.Attempt)
	assert.Equal(t, "plan.generate", st.Data.Run.Step)

	rec := st.Data.Steps["plan.generate"]
	require.NotNil(t, rec)
	assert.Equal(t, domain.StepDone, rec.Status)
	assert.Equal(t, "Generate plan", rec.Title)
	assert.Nil(t, rec.Lease)
	assert.NotEmpty(t, rec.InputsDigest)
	assert.NotEmpty(t, rec.OutputsDigest)
	require.NotNil(t, rec.EndedAt)
	assert.Equal(t, 3*time.Second, rec.EndedAt.Sub(*rec.StartedAt))
	assert.Len(t, rec.Artifacts, 2)

	index := st.Data.ArtifactsIndex["plan.generate"]
	require.Contains(t, index, "plan")
	assert.Equal(t, domain.ArtifactJSON, index["plan"].Kind)
	assert.Equal(t, domain.ArtifactText, index["notes"].Kind)

	var stored plan
	require.NoError(t, e.artifacts.ReadJSON(ctx, index["plan"], &stored))
	assert.Equal(t, []string{"a", "b"}, stored.Steps)

	assert.Equal(t, []string{domain.StepEventRunning, domain.StepEventSucceeded}, stepStatuses(e.events(t), "plan.generate"))
}

func TestRunStep_FailureIsRecordedAndReraised(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.runner.Start(ctx, "implement")
	require.NoError(t, err)

	boom := &domain.Error{Kind: domain.KindStepFailure, Message: "compile failed", Code: "E_BUILD"}
	_, err = e.runner.RunStep(ctx, "implement.apply", "Apply", func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.Error(t, err)
	assert.Same(t, boom, err, "the work error is returned unchanged")

	rec := e.state(t).Data.Steps["implement.apply"]
	assert.Equal(t, domain.StepFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "step_failure", rec.Error.Name)
	assert.Equal(t, "compile failed", rec.Error.Message)
	assert.Equal(t, "E_BUILD", rec.Error.Code)
	assert.Nil(t, rec.Lease)
	assert.NotNil(t, rec.EndedAt)

	events := e.events(t)
	last := events[len(events)-1]
	assert.Equal(t, domain.LevelError, last.Level)
	require.NotNil(t, last.Error)
	assert.Equal(t, "E_BUILD", last.Error.Code)

	notes, err := e.transcript.Read(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Text, "compile failed")
	assert.Equal(t, "implement.apply", notes[0].StepID)
}

func TestRunStep_ReEntryAfterFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.runner.Start(ctx, "verify")
	require.NoError(t, err)

	_, err = e.runner.RunStep(ctx, "verify.run", "Verify", func(ctx context.Context) (any, error) {
		return nil, errors.New("tests failed")
	})
	require.Error(t, err)

	_, err = e.runner.RunStep(ctx, "verify.run", "Verify", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	st := e.state(t)
	rec := st.Data.Steps["verify.run"]
	assert.Equal(t, domain.StepDone, rec.Status)
	assert.Nil(t, rec.Error, "prior failure discarded")
	assert.Nil(t, rec.Lease, "no orphaned lease")
	assert.Equal(t, 2, st.Data.Run.Attempt)

	assert.Equal(t,
		[]string{domain.StepEventRunning, domain.StepEventFailed, domain.StepEventRunning, domain.StepEventSucceeded},
		stepStatuses(e.events(t), "verify.run"))
}

func TestRunStep_ArtifactFailureFailsStep(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.runner.Start(ctx, "plan")
	require.NoError(t, err)

	_, err = e.runner.RunStep(ctx, "plan", "", func(ctx context.Context) (any, error) {
		return "x", nil
	}, runner.WithArtifactsFn(func(any) map[string]any {
		return map[string]any{"bad": func() {}}
	}))
	require.Error(t, err)
	assert.Equal(t, domain.StepFailed, e.state(t).Data.Steps["plan"].Status)
}

func TestRunStep_CanceledBeforeStart(t *testing.T) {
	e := newEnv(t)
	_, err := e.runner.Start(context.Background(), "plan")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err = e.runner.RunStep(ctx, "plan", "", func(ctx context.Context) (any, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, domain.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.NotContains(t, e.state(t).Data.Steps, "plan")
}

func TestRunStep_CancelMidStepStillRecordsOutcome(t *testing.T) {
	e := newEnv(t)
	_, err := e.runner.Start(context.Background(), "plan")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = e.runner.RunStep(ctx, "plan", "", func(ctx context.Context) (any, error) {
		cancel()
		return "done anyway", nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepDone, e.state(t).Data.Steps["plan"].Status)
}

func TestRunStep_RejectsFinishedRun(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.runner.Start(ctx, "plan")
	require.NoError(t, err)
	require.NoError(t, e.runner.Finish(ctx, domain.RunSuccess, ""))

	_, err = e.runner.RunStep(ctx, "late", "", func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRun_Typed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.runner.Start(ctx, "plan")
	require.NoError(t, err)

	n, err := runner.Run(ctx, e.runner, "count", "Count", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	p, err := runner.Run(ctx, e.runner, "nil-plan", "", func(ctx context.Context) (*plan, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRunStep_AuditFollowsDurableState(t *testing.T) {
	var seen []domain.StepStatus
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.runner.Start(ctx, "plan")
	require.NoError(t, err)

	sink := &probeSink{check: func(ev domain.Event) {
		if ev.Type != domain.EventRunStep {
			return
		}
		st, err := e.store.Read(ctx, "run-1")
		require.NoError(t, err)
		seen = append(seen, st.Data.Steps["plan"].Status)
	}}
	r := runner.New("run-1", e.store, runner.WithAudit(sink), runner.WithClock(e.clock.Now))

	_, err = r.RunStep(ctx, "plan", "", func(ctx context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, []domain.StepStatus{domain.StepRunning, domain.StepDone}, seen)
}

type probeSink struct {
	check func(domain.Event)
}

func (p *probeSink) Append(ctx context.Context, ev domain.Event) error {
	p.check(ev)
	return nil
}
