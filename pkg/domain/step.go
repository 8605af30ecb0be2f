package domain

import "time"

// StaleLeaseThreshold is how long a lease may go without a heartbeat before it is
// reported as stale. Staleness is a signal only; nothing fails a step because of it.
const StaleLeaseThreshold = 2 * time.Minute

// StepStatus is the lifecycle status of a single step.
type StepStatus string

const (
	StepNotStarted StepStatus = "not_started"
	StepRunning    StepStatus = "running"
	StepDone       StepStatus = "done"
	StepFailed     StepStatus = "failed"
)

// IsTerminal reports whether the step has finished, successfully or not.
func (s StepStatus) IsTerminal() bool {
	return s == StepDone || s == StepFailed
}

// CanTransition reports whether a step may move from s to next.
// Re-entry into running is allowed from any state; terminal states are only
// reachable from running.
func (s StepStatus) CanTransition(next StepStatus) bool {
	switch next {
	case StepRunning:
		return true
	case StepDone, StepFailed:
		return s == StepRunning
	default:
		return false
	}
}

// Lease is a time-stamped claim on a running step.
type Lease struct {
	LeaseID     string    `json:"leaseId"`
	StartedAt   time.Time `json:"startedAt"`
	HeartbeatAt time.Time `json:"heartbeatAt"`
}

// IsStale reports whether the last heartbeat is older than StaleLeaseThreshold.
func (l *Lease) IsStale(now time.Time) bool {
	if l == nil {
		return false
	}
	return now.Sub(l.HeartbeatAt) > StaleLeaseThreshold
}

// StepError is the structured failure recorded on a step.
type StepError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// StepRecord is the persisted state of one step.
type StepRecord struct {
	Status        StepStatus        `json:"status"`
	Title         string            `json:"title,omitempty"`
	StartedAt     *time.Time        `json:"startedAt,omitempty"`
	EndedAt       *time.Time        `json:"endedAt,omitempty"`
	InputsDigest  string            `json:"inputsDigest,omitempty"`
	OutputsDigest string            `json:"outputsDigest,omitempty"`
	Artifacts     map[string]string `json:"artifacts,omitempty"`
	Error         *StepError        `json:"error,omitempty"`
	Lease         *Lease            `json:"lease,omitempty"`
}

// Enter moves the step into running with a fresh lease.
// Prior end time, output digest and error are cleared; artifact references stay
// until the next successful completion replaces them.
func (r *StepRecord) Enter(lease Lease, inputsDigest string) error {
	if !r.Status.CanTransition(StepRunning) {
		return &Error{Kind: KindInvariant, Op: "step.enter", Message: "step cannot enter running", Err: ErrInvalidTransition}
	}
	startedAt := lease.StartedAt
	r.Status = StepRunning
	r.StartedAt = &startedAt
	r.EndedAt = nil
	r.OutputsDigest = ""
	r.Error = nil
	r.InputsDigest = inputsDigest
	r.Lease = &lease
	return nil
}

// Complete marks the step done and releases its lease.
func (r *StepRecord) Complete(at time.Time, outputsDigest string, artifacts map[string]string) error {
	if !r.Status.CanTransition(StepDone) {
		return &Error{Kind: KindInvariant, Op: "step.complete", Message: "step is not running", Err: ErrInvalidTransition}
	}
	r.Status = StepDone
	r.EndedAt = &at
	r.OutputsDigest = outputsDigest
	if len(artifacts) > 0 {
		r.Artifacts = artifacts
	}
	r.Error = nil
	r.Lease = nil
	return nil
}

// Fail marks the step failed and releases its lease.
func (r *StepRecord) Fail(at time.Time, stepErr StepError) error {
	if !r.Status.CanTransition(StepFailed) {
		return &Error{Kind: KindInvariant, Op: "step.fail", Message: "step is not running", Err: ErrInvalidTransition}
	}
	r.Status = StepFailed
	r.EndedAt = &at
	r.Error = &stepErr
	r.Lease = nil
	return nil
}
