package silvan

import (
	"context"

	"github.com/stevekinney/silvan-sub003/pkg/autofix"
	"github.com/stevekinney/silvan-sub003/pkg/checkpoint"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/runner"
)

// Step ids used by the verify phase.
const (
	PhaseVerify        = "verify"
	StepVerifyRun      = "verify.run"
	StepCheckpoint     = "checkpoint"
	DefaultCheckpoint  = "silvan: checkpoint after verification"
	verifyArtifactName = "report"
)

// Committer records a checkpoint commit. *checkpoint.Git satisfies it.
type Committer interface {
	Commit(ctx context.Context, message string) (checkpoint.Result, error)
}

// VerifyOptions configures Workspace.Verify.
type VerifyOptions struct {
	// Planner and Executor enable auto-fix. Both must be set.
	Planner  autofix.Planner
	Executor autofix.Executor
	Diff     autofix.DiffSource
	AutoFix  autofix.Config

	// Checkpoint commits the working tree after a passing verification.
	Checkpoint        Committer
	CheckpointMessage string

	// Finish marks the run succeeded once verification passes.
	Finish bool
}

// VerifyResult is the outcome of one verify phase.
type VerifyResult struct {
	RunID       string                    `json:"runId"`
	Report      domain.VerificationReport `json:"report"`
	AutoFix     *domain.AutoFixSummary    `json:"autoFix,omitempty"`
	Checkpoint  *checkpoint.Result        `json:"checkpoint,omitempty"`
	Convergence domain.RunConvergence     `json:"convergence"`
}

// Verify runs the verify phase of runID: verification, at most one auto-fix
// attempt, the local gate summary and an optional checkpoint commit.
// Failing verification is data, not an error; the local gate records it.
// An interrupt while the phase runs finishes the run as canceled.
func (w *Workspace) Verify(ctx context.Context, runID string, verifier autofix.Verifier, opts VerifyOptions) (VerifyResult, error) {
	r := w.Runner(runID)
	out, err := w.verify(ctx, r, verifier, opts)
	if err != nil {
		return out, r.Interrupted(ctx, err)
	}
	return out, nil
}

func (w *Workspace) verify(ctx context.Context, r *runner.Runner, verifier autofix.Verifier, opts VerifyOptions) (VerifyResult, error) {
	runID := r.RunID()
	out := VerifyResult{RunID: runID}
	if _, err := r.Start(ctx, PhaseVerify); err != nil {
		return out, err
	}
	if err := r.ChangePhase(ctx, PhaseVerify, "verify requested"); err != nil {
		return out, err
	}

	report, err := verifyStep(ctx, r, StepVerifyRun, verifier)
	if err != nil {
		return out, err
	}
	out.Report = report

	if !report.OK && opts.Planner != nil && opts.Executor != nil {
		rec := &recordingVerifier{next: verifier}
		ctrl := autofix.NewController(r, opts.Planner, opts.Executor, rec, opts.AutoFix,
			autofix.WithDiffSource(opts.Diff),
			autofix.WithLogger(w.logger),
			autofix.WithClock(w.now),
		)
		summary, err := ctrl.Attempt(ctx, report, true)
		out.AutoFix = &summary
		if err != nil && domain.KindOf(err) != domain.KindStepFailure {
			return out, err
		}
		if rec.last != nil {
			out.Report = *rec.last
		}
	}

	failures := out.Report.Failures()
	gate := &domain.LocalGateSummary{Blockers: len(failures), GeneratedAt: w.now().UTC()}
	for _, f := range failures {
		gate.Checks = append(gate.Checks, f.Name)
	}
	if _, err := r.UpdateState(ctx, func(d *domain.RunData) error {
		d.LocalGateSummary = gate
		return nil
	}); err != nil {
		return out, err
	}

	if out.Report.OK && opts.Checkpoint != nil {
		msg := opts.CheckpointMessage
		if msg == "" {
			msg = DefaultCheckpoint
		}
		res, err := runner.Run(ctx, r, StepCheckpoint, "Checkpoint commit", func(ctx context.Context) (checkpoint.Result, error) {
			return opts.Checkpoint.Commit(ctx, msg)
		})
		if err != nil {
			return out, err
		}
		out.Checkpoint = &res
		if res.SHA != "" {
			if _, err := r.UpdateState(ctx, func(d *domain.RunData) error {
				if d.Summary == nil {
					d.Summary = &domain.Summary{}
				}
				d.Summary.CheckpointSHA = res.SHA
				d.Summary.UpdatedAt = w.now().UTC()
				return nil
			}); err != nil {
				return out, err
			}
		}
	}

	if out.Report.OK && opts.Finish {
		if err := r.Finish(ctx, domain.RunSuccess, "verification passed"); err != nil {
			return out, err
		}
	}

	out.Convergence, err = w.Convergence(ctx, runID)
	return out, err
}

func verifyStep(ctx context.Context, r *runner.Runner, stepID string, verifier autofix.Verifier) (domain.VerificationReport, error) {
	return runner.Run(ctx, r, stepID, "Run verification", verifier.Verify,
		runner.WithArtifactsFn(func(result any) map[string]any {
			return map[string]any{verifyArtifactName: result}
		}))
}

// recordingVerifier keeps the last report produced during an auto-fix attempt.
type recordingVerifier struct {
	next autofix.Verifier
	last *domain.VerificationReport
}

func (v *recordingVerifier) Verify(ctx context.Context) (domain.VerificationReport, error) {
	report, err := v.next.Verify(ctx)
	if err == nil {
		v.last = &report
	}
	return report, err
}
