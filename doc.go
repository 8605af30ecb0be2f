/*
Package silvan is the run orchestration core of an automated software-engineering workflow.

A run moves through phases (plan, implement, verify, open a pull request, wait for
CI, resolve review) as a single durable unit. The core persists its progress, keeps
an append-only audit journal, stores step outputs as artifacts, and derives one
authoritative status from the recorded state.

# Concepts

  - Run state: one JSON document per run, written with temp-file-and-rename so a
    reader never observes a partial write.
  - Steps: units of work wrapped by pkg/runner with leases, heartbeats and audit
    events. Failures are recorded, then returned to the caller.
  - Convergence: pkg/convergence reduces the state and artifact index to one of
    eight statuses plus recommended next actions. It is pure and never cached.
  - Auto-fix: pkg/autofix runs bounded plan, apply and re-verify attempts for
    failing verification commands.

# Usage

Open a Workspace for a repository and drive a run through its steps:

	ws, err := silvan.Open(ctx, layout)
	if err != nil {
		return err
	}
	defer ws.Close(ctx)

	r := ws.Runner(ws.NewRunID())
	if _, err := r.Start(ctx, "plan"); err != nil {
		return err
	}
	err = r.Drive(ctx, []runner.Step{
		{ID: "plan", Work: plan},
		{ID: "implement", Work: implement},
	})

	verdict, err := ws.Convergence(ctx, r.RunID())
*/
package silvan
