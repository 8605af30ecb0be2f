package domain

import "time"

// CI states recorded in Summary.CI.
const (
	CIPending = "pending"
	CIPassed  = "passed"
	CIFailed  = "failed"
	CITimeout = "timeout"
)

// Summary is the run-wide snapshot written by phase controllers.
type Summary struct {
	CI                    string    `json:"ci,omitempty"`
	PRURL                 string    `json:"prUrl,omitempty"`
	UnresolvedReviewCount int       `json:"unresolvedReviewCount,omitempty"`
	BlockedReason         string    `json:"blockedReason,omitempty"`
	CheckpointSHA         string    `json:"checkpointSha,omitempty"`
	UpdatedAt             time.Time `json:"updatedAt,omitempty"`
}

// LocalGateSummary records the outcome of the local quality gate.
type LocalGateSummary struct {
	Blockers    int       `json:"blockers"`
	Warnings    int       `json:"warnings,omitempty"`
	Checks      []string  `json:"checks,omitempty"`
	GeneratedAt time.Time `json:"generatedAt,omitempty"`
}

// AttemptStatus is the state of one auto-fix attempt.
type AttemptStatus string

const (
	AttemptSkipped   AttemptStatus = "skipped"
	AttemptPlanned   AttemptStatus = "planned"
	AttemptApplied   AttemptStatus = "applied"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// DiffStat is a working-tree change summary, kept for operator visibility.
type DiffStat struct {
	FilesChanged int `json:"filesChanged"`
	Insertions   int `json:"insertions"`
	Deletions    int `json:"deletions"`
}

// AutoFixSummary is the persisted record of the verification auto-fix controller.
type AutoFixSummary struct {
	Attempts       int           `json:"attempts"`
	MaxAttempts    int           `json:"maxAttempts"`
	Status         AttemptStatus `json:"status"`
	ReasonCode     string        `json:"reasonCode,omitempty"`
	FailedChecks   []string      `json:"failedChecks,omitempty"`
	PlanSummary    string        `json:"planSummary,omitempty"`
	PlanSteps      int           `json:"planSteps,omitempty"`
	ExecutorResult string        `json:"executorResult,omitempty"`
	DiffBefore     *DiffStat     `json:"diffBefore,omitempty"`
	DiffAfter      *DiffStat     `json:"diffAfter,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// VerificationResult is the outcome of a single verification command.
type VerificationResult struct {
	Name     string `json:"name"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// Failed reports whether the command needs remediation.
func (r VerificationResult) Failed() bool {
	return r.ExitCode != 0
}

// VerificationReport is what a verification runner returns.
type VerificationReport struct {
	OK      bool                 `json:"ok"`
	Results []VerificationResult `json:"results"`
}

// Failures returns the results with a non-zero exit code.
func (r VerificationReport) Failures() []VerificationResult {
	var out []VerificationResult
	for _, res := range r.Results {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}

// CommandResult is the raw outcome of an external command.
type CommandResult struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}
