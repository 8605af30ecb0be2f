/*
Package domain contains the core run model for the orchestrator.

It defines the persisted run document, the step and lease records, artifact
addressing, phase summaries, the derived convergence verdict and the audit event
envelope. This package is kept pure and free of I/O so that every other package
can share one vocabulary.

# Key Entities

  - RunState: The versioned envelope {version, runId, data} persisted once per run.
  - RunData: Typed run body; unknown keys round-trip untouched through Extra.
  - StepRecord / Lease: Per-step lifecycle with monotonic transitions.
  - ArtifactEntry: Digest-addressed pointer to a step output stored on the side.
  - RunConvergence: The single derived verdict, never persisted.
  - Error: Closed error-kind taxonomy with structured details.
*/
package domain
