/*
Package runner implements the step execution framework for a run.

It wraps each unit of work so that its lifecycle is always observable in the run
document and the audit log, even if the process dies mid-step. Every transition is
persisted before the matching audit event is emitted, and failures are recorded
before they are returned to the caller.

# Key Components

  - Runner: Owns one run id; starts, steps, heartbeats, updates and finishes it.
  - Run: Generic, typed wrapper over Runner.RunStep.
  - Drive: Runs a list of steps strictly in order, checking cancellation between steps.

# Usage

	r := runner.New(runID, store,
		runner.WithAudit(auditLog),
		runner.WithArtifacts(artifactStore),
	)
	if _, err := r.Start(ctx, "plan"); err != nil {
		return err
	}
	plan, err := runner.Run(ctx, r, "plan.generate", "Generate plan", generatePlan,
		runner.WithInputs(ticket),
		runner.WithArtifactsFn(func(p any) map[string]any { return map[string]any{"plan": p} }),
	)
*/
package runner
