package convergence

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Reason codes reported in RunConvergence.ReasonCode.
const (
	ReasonNoState          = "no_state"
	ReasonAborted          = "run_aborted"
	ReasonCanceled         = "run_canceled"
	ReasonRunFailed        = "run_failed"
	ReasonRunSucceeded     = "run_succeeded"
	ReasonStepRunning      = "step_running"
	ReasonStepLeaseStale   = "step_lease_stale"
	ReasonLocalGateBlocked = "local_gate_blocked"
	ReasonCIPending        = "ci_pending"
	ReasonReviewPending    = "review_pending"
	ReasonBlocked          = "blocked"
	ReasonStepFailed       = "step_failed"
	ReasonInProgress       = "in_progress"
)

// CIWaitPrefix marks steps that wait on remote checks.
const CIWaitPrefix = "ci.wait"

// Input is everything a verdict depends on.
type Input struct {
	State *domain.RunState

	// Artifacts is the flattened artifact index. When nil, it is taken from State.
	Artifacts []domain.ArtifactEntry

	// Now is used only to surface stale leases. The zero value disables that check.
	Now time.Time
}

type view struct {
	state     *domain.RunState
	artifacts []domain.ArtifactEntry
	now       time.Time
}

type rule func(v *view) (domain.RunConvergence, bool)

// rules is evaluated top to bottom. Order encodes priority.
var rules = []rule{
	aborted,
	failed,
	converged,
	running,
	localGate,
	ciPending,
	reviewPending,
	blockedReason,
	stepFailed,
}

// Derive returns the verdict for in.
func Derive(in Input) domain.RunConvergence {
	if in.State == nil {
		return verdict(domain.ConvergenceRunning, ReasonNoState, "no run state recorded yet",
			domain.ActionResume, domain.ActionAbort)
	}
	v := &view{state: in.State, artifacts: in.Artifacts, now: in.Now}
	if v.artifacts == nil {
		v.artifacts = in.State.Artifacts()
	}
	for _, r := range rules {
		if out, ok := r(v); ok {
			return out
		}
	}
	return verdict(domain.ConvergenceRunning, ReasonInProgress, "run is in progress",
		domain.ActionWait, domain.ActionAbort)
}

func verdict(status domain.ConvergenceStatus, reason, message string, actions ...domain.NextAction) domain.RunConvergence {
	if actions == nil {
		actions = []domain.NextAction{}
	}
	return domain.RunConvergence{Status: status, ReasonCode: reason, Message: message, NextActions: actions}
}

func aborted(v *view) (domain.RunConvergence, bool) {
	if entry, ok := domain.FindArtifact(v.artifacts, domain.ArtifactAbort); ok {
		out := verdict(domain.ConvergenceAborted, ReasonAborted, "run was aborted by an operator")
		out.BlockingArtifacts = []domain.ArtifactEntry{entry}
		return out, true
	}
	if v.state.Data.Run.Status == domain.RunCanceled {
		return verdict(domain.ConvergenceAborted, ReasonCanceled, "run was canceled"), true
	}
	return domain.RunConvergence{}, false
}

func failed(v *view) (domain.RunConvergence, bool) {
	if v.state.Data.Run.Status != domain.RunFailed {
		return domain.RunConvergence{}, false
	}
	msg := "run failed"
	if step := v.state.Data.Run.Step; step != "" {
		msg = fmt.Sprintf("run failed at step %s", step)
	}
	return verdict(domain.ConvergenceFailed, ReasonRunFailed, msg,
		domain.ActionResume, domain.ActionFixCode, domain.ActionAbort), true
}

func converged(v *view) (domain.RunConvergence, bool) {
	if v.state.Data.Run.Status != domain.RunSuccess {
		return domain.RunConvergence{}, false
	}
	return verdict(domain.ConvergenceConverged, ReasonRunSucceeded, "run completed successfully"), true
}

func running(v *view) (domain.RunConvergence, bool) {
	ids := stepsWithStatus(v.state, domain.StepRunning)
	if len(ids) == 0 {
		return domain.RunConvergence{}, false
	}
	if !v.now.IsZero() {
		if stale := v.state.StaleSteps(v.now); len(stale) > 0 {
			return verdict(domain.ConvergenceRunning, ReasonStepLeaseStale,
				fmt.Sprintf("no heartbeat from %s for over %s", strings.Join(stale, ", "), domain.StaleLeaseThreshold),
				domain.ActionWait, domain.ActionAbort), true
		}
	}
	return verdict(domain.ConvergenceRunning, ReasonStepRunning,
		fmt.Sprintf("step %s is running", strings.Join(ids, ", ")),
		domain.ActionWait, domain.ActionAbort), true
}

func localGate(v *view) (domain.RunConvergence, bool) {
	gate := v.state.Data.LocalGateSummary
	if gate == nil || gate.Blockers <= 0 {
		return domain.RunConvergence{}, false
	}
	if domain.HasArtifact(v.artifacts, domain.ArtifactOverrides) {
		return domain.RunConvergence{}, false
	}
	return verdict(domain.ConvergenceWaitingForUser, ReasonLocalGateBlocked,
		fmt.Sprintf("local gate reported %d blocker(s)", gate.Blockers),
		domain.ActionFixCode, domain.ActionRerunGate, domain.ActionOverride, domain.ActionAbort), true
}

func ciPending(v *view) (domain.RunConvergence, bool) {
	if s := v.state.Data.Summary; s != nil && s.CI == domain.CIPending {
		return verdict(domain.ConvergenceWaitingForCI, ReasonCIPending, "waiting for CI checks",
			domain.ActionWait, domain.ActionAbort), true
	}
	for _, id := range sortedStepIDs(v.state) {
		if !strings.HasPrefix(id, CIWaitPrefix) {
			continue
		}
		switch v.state.Data.Steps[id].Status {
		case domain.StepDone, domain.StepFailed:
			continue
		}
		return verdict(domain.ConvergenceWaitingForCI, ReasonCIPending,
			fmt.Sprintf("waiting for CI step %s", id),
			domain.ActionWait, domain.ActionAbort), true
	}
	return domain.RunConvergence{}, false
}

func reviewPending(v *view) (domain.RunConvergence, bool) {
	s := v.state.Data.Summary
	if s == nil || s.UnresolvedReviewCount <= 0 {
		return domain.RunConvergence{}, false
	}
	return verdict(domain.ConvergenceWaitingForReview, ReasonReviewPending,
		fmt.Sprintf("%d unresolved review comment(s)", s.UnresolvedReviewCount),
		domain.ActionResume, domain.ActionWait, domain.ActionAbort), true
}

func blockedReason(v *view) (domain.RunConvergence, bool) {
	s := v.state.Data.Summary
	if s == nil || strings.TrimSpace(s.BlockedReason) == "" {
		return domain.RunConvergence{}, false
	}
	return verdict(domain.ConvergenceBlocked, ReasonBlocked, s.BlockedReason,
		domain.ActionResume, domain.ActionFixCode, domain.ActionAbort), true
}

func stepFailed(v *view) (domain.RunConvergence, bool) {
	ids := stepsWithStatus(v.state, domain.StepFailed)
	if len(ids) == 0 {
		return domain.RunConvergence{}, false
	}
	msg := fmt.Sprintf("step %s failed", strings.Join(ids, ", "))
	if rec := v.state.Data.Steps[ids[0]]; rec.Error != nil && rec.Error.Message != "" {
		msg += ": " + rec.Error.Message
	}
	out := verdict(domain.ConvergenceBlocked, ReasonStepFailed, msg,
		domain.ActionResume, domain.ActionFixCode, domain.ActionAbort)
	for _, e := range v.artifacts {
		for _, id := range ids {
			if e.StepID == id {
				out.BlockingArtifacts = append(out.BlockingArtifacts, e)
			}
		}
	}
	return out, true
}

func stepsWithStatus(s *domain.RunState, status domain.StepStatus) []string {
	var ids []string
	for _, id := range sortedStepIDs(s) {
		if s.Data.Steps[id].Status == status {
			ids = append(ids, id)
		}
	}
	return ids
}

func sortedStepIDs(s *domain.RunState) []string {
	ids := make([]string, 0, len(s.Data.Steps))
	for id, rec := range s.Data.Steps {
		if rec != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
