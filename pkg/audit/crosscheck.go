package audit

import (
	"fmt"
	"sort"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Finding codes reported by CrossCheck.
const (
	FindingStuckStep        = "stuck_step"
	FindingMissingEvent     = "missing_audit_event"
	FindingStateBehindAudit = "state_behind_audit"
)

// Finding is one discrepancy between the journal and the run document.
type Finding struct {
	Code    string `json:"code"`
	StepID  string `json:"stepId"`
	Message string `json:"message"`
}

// CrossCheck compares a run document with its journal.
// Because the journal may lag or lead the document after a crash, findings are
// diagnostics for operators and analytics only; nothing acts on them.
func CrossCheck(state *domain.RunState, events []domain.Event, now time.Time) []Finding {
	last := make(map[string]string)
	for _, ev := range events {
		if stepID, status, ok := StepPayload(ev); ok {
			last[stepID] = status
		}
	}

	var findings []Finding
	ids := make([]string, 0, len(state.Data.Steps))
	for id := range state.Data.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := state.Data.Steps[id]
		audited, seen := last[id]

		switch rec.Status {
		case domain.StepRunning:
			if rec.Lease.IsStale(now) && audited != domain.StepEventSucceeded && audited != domain.StepEventFailed {
				findings = append(findings, Finding{
					Code:    FindingStuckStep,
					StepID:  id,
					Message: fmt.Sprintf("step running with a lease last renewed %s ago and no terminal event", now.Sub(rec.Lease.HeartbeatAt).Round(time.Second)),
				})
			}
			if audited == domain.StepEventSucceeded || audited == domain.StepEventFailed {
				findings = append(findings, Finding{
					Code:    FindingStateBehindAudit,
					StepID:  id,
					Message: "journal records step as " + audited + " but document still shows running",
				})
			}
		case domain.StepDone, domain.StepFailed:
			want := domain.StepEventSucceeded
			if rec.Status == domain.StepFailed {
				want = domain.StepEventFailed
			}
			if !seen || audited != want {
				findings = append(findings, Finding{
					Code:    FindingMissingEvent,
					StepID:  id,
					Message: fmt.Sprintf("document shows %s but journal has no matching %s event", rec.Status, want),
				})
			}
		}
	}
	return findings
}
