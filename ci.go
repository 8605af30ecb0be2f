package silvan

import (
	"context"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/autofix"
	"github.com/stevekinney/silvan-sub003/pkg/ciwait"
	"github.com/stevekinney/silvan-sub003/pkg/convergence"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/runner"
)

// Phase and step ids used while waiting on remote checks.
const (
	PhaseCI       = "ci"
	StepCIWait    = convergence.CIWaitPrefix
	ciHeartbeat   = 30 * time.Second
	ciArtifactKey = "ci"
)

// AwaitCI runs the ci.wait step of runID, polling check until it settles.
// summary.ci tracks the wait. A failed or timed-out check fails the step and an
// interrupt finishes the run as canceled.
func (w *Workspace) AwaitCI(ctx context.Context, runID string, check ciwait.Check, opts ...ciwait.Option) (string, error) {
	r := w.Runner(runID)
	if _, err := r.Start(ctx, PhaseCI); err != nil {
		return "", err
	}
	if err := r.ChangePhase(ctx, PhaseCI, "waiting for CI"); err != nil {
		return "", err
	}

	ctrl := autofix.NewController(r, nil, nil, nil, autofix.Config{},
		autofix.WithLogger(w.logger),
		autofix.WithClock(w.now),
	)
	var state string
	_, err := runner.Run(ctx, r, StepCIWait, "Wait for CI", func(ctx context.Context) (map[string]any, error) {
		stop := r.KeepAlive(ctx, StepCIWait, ciHeartbeat)
		defer stop()

		var err error
		state, err = ctrl.AwaitChecks(ctx, check, opts...)
		if err != nil {
			return nil, err
		}
		if state == domain.CIFailed {
			return nil, &domain.Error{
				Kind:    domain.KindVerificationFailure,
				Op:      StepCIWait,
				Message: "CI checks failed",
				Code:    "ci_failed",
			}
		}
		return map[string]any{"state": state}, nil
	}, runner.WithArtifactsFn(func(result any) map[string]any {
		return map[string]any{ciArtifactKey: result}
	}))
	if err != nil {
		return state, r.Interrupted(ctx, err)
	}
	return state, nil
}
