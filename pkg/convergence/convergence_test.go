package convergence_test

import (
	"testing"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/convergence"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newState(mutate ...func(*domain.RunState)) *domain.RunState {
	st := domain.NewRunState("run-1", "verify", t0)
	for _, m := range mutate {
		m(st)
	}
	return st
}

func withStep(id string, status domain.StepStatus) func(*domain.RunState) {
	return func(st *domain.RunState) {
		rec := st.Step(id)
		rec.Status = status
		if status == domain.StepRunning {
			rec.Lease = &domain.Lease{LeaseID: "l-" + id, StartedAt: t0, HeartbeatAt: t0}
		}
	}
}

func withStatus(s domain.RunStatus) func(*domain.RunState) {
	return func(st *domain.RunState) { st.Data.Run.Status = s }
}

func withBlockers(n int) func(*domain.RunState) {
	return func(st *domain.RunState) { st.Data.LocalGateSummary = &domain.LocalGateSummary{Blockers: n} }
}

func withSummary(s domain.Summary) func(*domain.RunState) {
	return func(st *domain.RunState) { st.Data.Summary = &s }
}

func artifact(step, name string) domain.ArtifactEntry {
	return domain.ArtifactEntry{StepID: step, Name: name, Path: step + "/" + name + ".json", Digest: "sha256:x", UpdatedAt: t0, Kind: domain.ArtifactJSON}
}

func TestDerive_Rules(t *testing.T) {
	tests := []struct {
		name      string
		state     *domain.RunState
		artifacts []domain.ArtifactEntry
		status    domain.ConvergenceStatus
		reason    string
		actions   []domain.NextAction
	}{
		{
			name:      "abort artifact",
			state:     newState(),
			artifacts: []domain.ArtifactEntry{artifact("operator", domain.ArtifactAbort)},
			status:    domain.ConvergenceAborted,
			reason:    convergence.ReasonAborted,
			actions:   []domain.NextAction{},
		},
		{
			name:    "canceled run",
			state:   newState(withStatus(domain.RunCanceled)),
			status:  domain.ConvergenceAborted,
			reason:  convergence.ReasonCanceled,
			actions: []domain.NextAction{},
		},
		{
			name:    "failed run",
			state:   newState(withStatus(domain.RunFailed)),
			status:  domain.ConvergenceFailed,
			reason:  convergence.ReasonRunFailed,
			actions: []domain.NextAction{domain.ActionResume, domain.ActionFixCode, domain.ActionAbort},
		},
		{
			name:    "successful run",
			state:   newState(withStatus(domain.RunSuccess)),
			status:  domain.ConvergenceConverged,
			reason:  convergence.ReasonRunSucceeded,
			actions: []domain.NextAction{},
		},
		{
			name:    "step running",
			state:   newState(withStep("implement", domain.StepRunning), withBlockers(3)),
			status:  domain.ConvergenceRunning,
			reason:  convergence.ReasonStepRunning,
			actions: []domain.NextAction{domain.ActionWait, domain.ActionAbort},
		},
		{
			name:    "local gate blocked",
			state:   newState(withBlockers(2)),
			status:  domain.ConvergenceWaitingForUser,
			reason:  convergence.ReasonLocalGateBlocked,
			actions: []domain.NextAction{domain.ActionFixCode, domain.ActionRerunGate, domain.ActionOverride, domain.ActionAbort},
		},
		{
			name:    "ci pending via summary",
			state:   newState(withSummary(domain.Summary{CI: domain.CIPending})),
			status:  domain.ConvergenceWaitingForCI,
			reason:  convergence.ReasonCIPending,
			actions: []domain.NextAction{domain.ActionWait, domain.ActionAbort},
		},
		{
			name:    "ci pending via unfinished wait step",
			state:   newState(withStep("ci.wait.checks", domain.StepNotStarted)),
			status:  domain.ConvergenceWaitingForCI,
			reason:  convergence.ReasonCIPending,
			actions: []domain.NextAction{domain.ActionWait, domain.ActionAbort},
		},
		{
			name:    "review pending",
			state:   newState(withSummary(domain.Summary{UnresolvedReviewCount: 4})),
			status:  domain.ConvergenceWaitingForReview,
			reason:  convergence.ReasonReviewPending,
			actions: []domain.NextAction{domain.ActionResume, domain.ActionWait, domain.ActionAbort},
		},
		{
			name:    "blocked reason",
			state:   newState(withSummary(domain.Summary{BlockedReason: "ticket has no acceptance criteria"})),
			status:  domain.ConvergenceBlocked,
			reason:  convergence.ReasonBlocked,
			actions: []domain.NextAction{domain.ActionResume, domain.ActionFixCode, domain.ActionAbort},
		},
		{
			name:    "failed step on a running run",
			state:   newState(withStep("verify", domain.StepFailed)),
			status:  domain.ConvergenceBlocked,
			reason:  convergence.ReasonStepFailed,
			actions: []domain.NextAction{domain.ActionResume, domain.ActionFixCode, domain.ActionAbort},
		},
		{
			name:    "nothing to report",
			state:   newState(withStep("plan", domain.StepDone), withStep("ci.wait", domain.StepDone)),
			status:  domain.ConvergenceRunning,
			reason:  convergence.ReasonInProgress,
			actions: []domain.NextAction{domain.ActionWait, domain.ActionAbort},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convergence.Derive(convergence.Input{State: tt.state, Artifacts: tt.artifacts})
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.reason, got.ReasonCode)
			assert.Equal(t, tt.actions, got.NextActions)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestDerive_FailedTakesPriorityOverReview(t *testing.T) {
	st := newState(withStatus(domain.RunFailed), withSummary(domain.Summary{UnresolvedReviewCount: 3}))
	got := convergence.Derive(convergence.Input{State: st})
	assert.Equal(t, domain.ConvergenceFailed, got.Status)
}

func TestDerive_AbortArtifactBeatsSuccess(t *testing.T) {
	st := newState(withStatus(domain.RunSuccess))
	st.IndexArtifact(artifact("operator", domain.ArtifactAbort))

	got := convergence.Derive(convergence.Input{State: st})
	assert.Equal(t, domain.ConvergenceAborted, got.Status)
	require.Len(t, got.BlockingArtifacts, 1)
	assert.Equal(t, domain.ArtifactAbort, got.BlockingArtifacts[0].Name)
}

func TestDerive_OverrideSuppressesGate(t *testing.T) {
	st := newState(withBlockers(2))
	st.IndexArtifact(artifact("verify.local_gate", domain.ArtifactOverrides))

	got := convergence.Derive(convergence.Input{State: st})
	assert.NotEqual(t, domain.ConvergenceWaitingForUser, got.Status)
	assert.Equal(t, domain.ConvergenceRunning, got.Status)

	st.Data.Summary = &domain.Summary{CI: domain.CIPending}
	got = convergence.Derive(convergence.Input{State: st})
	assert.Equal(t, domain.ConvergenceWaitingForCI, got.Status, "falls through to the next applicable rule")
}

func TestDerive_ArtifactsDefaultToIndex(t *testing.T) {
	st := newState(withBlockers(1))
	st.IndexArtifact(artifact("gate", domain.ArtifactOverrides))

	fromIndex := convergence.Derive(convergence.Input{State: st})
	explicit := convergence.Derive(convergence.Input{State: st, Artifacts: []domain.ArtifactEntry{}})

	assert.Equal(t, domain.ConvergenceRunning, fromIndex.Status)
	assert.Equal(t, domain.ConvergenceWaitingForUser, explicit.Status, "an explicit list replaces the index")
}

func TestDerive_StaleLease(t *testing.T) {
	st := newState(withStep("implement", domain.StepRunning))

	fresh := convergence.Derive(convergence.Input{State: st, Now: t0.Add(time.Minute)})
	assert.Equal(t, convergence.ReasonStepRunning, fresh.ReasonCode)

	stale := convergence.Derive(convergence.Input{State: st, Now: t0.Add(5 * time.Minute)})
	assert.Equal(t, domain.ConvergenceRunning, stale.Status, "staleness is surfaced, not acted on")
	assert.Equal(t, convergence.ReasonStepLeaseStale, stale.ReasonCode)
	assert.Contains(t, stale.Message, "implement")
}

func TestDerive_FailedStepListsItsArtifacts(t *testing.T) {
	st := newState(withStep("verify", domain.StepFailed), withStep("plan", domain.StepDone))
	st.Data.Steps["verify"].Error = &domain.StepError{Name: "Error", Message: "tests failed"}
	st.IndexArtifact(artifact("verify", "report"))
	st.IndexArtifact(artifact("plan", "plan"))

	got := convergence.Derive(convergence.Input{State: st})
	assert.Equal(t, domain.ConvergenceBlocked, got.Status)
	assert.Contains(t, got.Message, "tests failed")
	require.Len(t, got.BlockingArtifacts, 1)
	assert.Equal(t, "verify", got.BlockingArtifacts[0].StepID)
}

func TestDerive_IsPure(t *testing.T) {
	st := newState(
		withStep("ci.wait", domain.StepRunning),
		withBlockers(1),
		withSummary(domain.Summary{UnresolvedReviewCount: 2, BlockedReason: "x"}),
	)
	before, err := domain.Digest(st)
	require.NoError(t, err)

	in := convergence.Input{State: st, Now: t0.Add(10 * time.Minute)}
	first := convergence.Derive(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, convergence.Derive(in))
	}

	after, err := domain.Digest(st)
	require.NoError(t, err)
	assert.Equal(t, before, after, "derivation never mutates the state")
}

func TestDerive_NilState(t *testing.T) {
	got := convergence.Derive(convergence.Input{})
	assert.Equal(t, domain.ConvergenceRunning, got.Status)
	assert.Equal(t, convergence.ReasonNoState, got.ReasonCode)
}
