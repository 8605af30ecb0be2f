package audit

import (
	"sort"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// StepStats aggregates run.step events for one step.
type StepStats struct {
	Starts     int           `json:"starts"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	LastStatus string        `json:"lastStatus"`
	Duration   time.Duration `json:"duration"`
}

// Summary is an analytics view over a run's journal.
type Summary struct {
	Total    int                       `json:"total"`
	ByType   map[domain.EventType]int  `json:"byType"`
	ByLevel  map[domain.EventLevel]int `json:"byLevel"`
	Steps    map[string]*StepStats     `json:"steps"`
	Phases   []string                  `json:"phases,omitempty"`
	Failures []domain.Event            `json:"failures,omitempty"`
	First    time.Time                 `json:"first,omitempty"`
	Last     time.Time                 `json:"last,omitempty"`
}

// StepPayload extracts the step id and status from a run.step event.
func StepPayload(ev domain.Event) (stepID, status string, ok bool) {
	if ev.Type != domain.EventRunStep || ev.Payload == nil {
		return "", "", false
	}
	stepID, _ = ev.Payload["stepId"].(string)
	status, _ = ev.Payload["status"].(string)
	return stepID, status, stepID != "" && status != ""
}

// Summarize counts events and measures step durations from start to terminal event.
func Summarize(events []domain.Event) Summary {
	s := Summary{
		ByType:  make(map[domain.EventType]int),
		ByLevel: make(map[domain.EventLevel]int),
		Steps:   make(map[string]*StepStats),
	}
	started := make(map[string]time.Time)

	sorted := append([]domain.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) })

	for _, ev := range sorted {
		s.Total++
		s.ByType[ev.Type]++
		s.ByLevel[ev.Level]++
		if s.First.IsZero() {
			s.First = ev.TS
		}
		s.Last = ev.TS

		if ev.Type == domain.EventRunPhaseChanged {
			if to, ok := ev.Payload["to"].(string); ok {
				s.Phases = append(s.Phases, to)
			}
		}

		stepID, status, ok := StepPayload(ev)
		if !ok {
			continue
		}
		st := s.Steps[stepID]
		if st == nil {
			st = &StepStats{}
			s.Steps[stepID] = st
		}
		st.LastStatus = status
		switch status {
		case domain.StepEventRunning:
			st.Starts++
			started[stepID] = ev.TS
		case domain.StepEventSucceeded, domain.StepEventFailed:
			if status == domain.StepEventSucceeded {
				st.Succeeded++
			} else {
				st.Failed++
				s.Failures = append(s.Failures, ev)
			}
			if at, ok := started[stepID]; ok {
				st.Duration += ev.TS.Sub(at)
				delete(started, stepID)
			}
		}
	}
	return s
}
