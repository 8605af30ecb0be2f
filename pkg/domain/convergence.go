package domain

// ConvergenceStatus is the single derived verdict for a run.
type ConvergenceStatus string

const (
	ConvergenceRunning          ConvergenceStatus = "running"
	ConvergenceWaitingForUser   ConvergenceStatus = "waiting_for_user"
	ConvergenceWaitingForCI     ConvergenceStatus = "waiting_for_ci"
	ConvergenceWaitingForReview ConvergenceStatus = "waiting_for_review"
	ConvergenceBlocked          ConvergenceStatus = "blocked"
	ConvergenceConverged        ConvergenceStatus = "converged"
	ConvergenceFailed           ConvergenceStatus = "failed"
	ConvergenceAborted          ConvergenceStatus = "aborted"
)

// IsTerminal reports whether the verdict will not change without a new run.
func (s ConvergenceStatus) IsTerminal() bool {
	return s == ConvergenceConverged || s == ConvergenceAborted
}

// NextAction is an operator or driver action recommended by convergence.
type NextAction string

const (
	ActionResume    NextAction = "resume"
	ActionRerunGate NextAction = "rerun_gate"
	ActionOverride  NextAction = "override"
	ActionFixCode   NextAction = "fix_code"
	ActionWait      NextAction = "wait"
	ActionAbort     NextAction = "abort"
)

// RunConvergence is derived on every inspection and never persisted.
type RunConvergence struct {
	Status            ConvergenceStatus `json:"status"`
	ReasonCode        string            `json:"reasonCode"`
	Message           string            `json:"message"`
	BlockingArtifacts []ArtifactEntry   `json:"blockingArtifacts,omitempty"`
	NextActions       []NextAction      `json:"nextActions"`
}
