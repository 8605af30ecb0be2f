package autofix

import "github.com/stevekinney/silvan-sub003/pkg/domain"

// Reason codes recorded in AutoFixSummary.ReasonCode.
const (
	ReasonDisabled           = "disabled"
	ReasonMaxAttemptsReached = "max_attempts_reached"
	ReasonUnclassified       = "unclassified"
	ReasonDryRun             = "dry_run"
	ReasonNoFailures         = "no_failures"
	ReasonPlanFailed         = "plan_failed"
	ReasonApplyFailed        = "apply_failed"
	ReasonVerifyFailed       = "verify_failed"
	ReasonStillFailing       = "still_failing"
)

// Policy holds the inputs of the attempt decision.
type Policy struct {
	Enabled     bool
	MaxAttempts int
	Attempts    int
	Classified  bool
	Apply       bool
	DryRun      bool
}

// Decision is the outcome of ShouldAttempt. A rejected decision is data, not an error.
type Decision struct {
	Attempt    bool
	ReasonCode string
}

// ShouldAttempt decides whether one more remediation attempt may run.
// Once Attempts reaches MaxAttempts the answer is no regardless of the other flags.
func ShouldAttempt(p Policy, failures []domain.VerificationResult) Decision {
	switch {
	case !p.Enabled:
		return Decision{ReasonCode: ReasonDisabled}
	case p.Attempts >= p.MaxAttempts:
		return Decision{ReasonCode: ReasonMaxAttemptsReached}
	case !p.Classified:
		return Decision{ReasonCode: ReasonUnclassified}
	case !p.Apply || p.DryRun:
		return Decision{ReasonCode: ReasonDryRun}
	case len(failures) == 0:
		return Decision{ReasonCode: ReasonNoFailures}
	}
	return Decision{Attempt: true}
}
