package domain

import (
	"encoding/json"
	"reflect"
	"sort"
)

// StateDiff describes what changed between two snapshots of the same run.
// It is carried in run.persisted audit payloads so a replay can tell which
// parts of the document a persist touched without storing the whole document.
type StateDiff struct {
	RunID string `json:"runId"`

	// Status and Phase are set only when they changed.
	Status *RunStatus `json:"status,omitempty"`
	Phase  *string    `json:"phase,omitempty"`

	// Steps maps step id to its new status for added or changed steps.
	Steps map[string]StepStatus `json:"steps,omitempty"`

	// Keys lists top-level data keys whose content changed, including deletions.
	Keys []string `json:"keys,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState.
func Diff(oldState, newState *RunState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{RunID: newState.RunID}

	if oldState == nil || oldState.Data.Run.Status != newState.Data.Run.Status {
		status := newState.Data.Run.Status
		diff.Status = &status
	}
	if oldState == nil || oldState.Data.Run.Phase != newState.Data.Run.Phase {
		phase := newState.Data.Run.Phase
		diff.Phase = &phase
	}

	diff.Steps = diffSteps(oldState, newState)
	diff.Keys = diffKeys(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffSteps(old, new *RunState) map[string]StepStatus {
	delta := make(map[string]StepStatus)
	for id, rec := range new.Data.Steps {
		if old == nil {
			delta[id] = rec.Status
			continue
		}
		prev, exists := old.Data.Steps[id]
		if !exists || !reflect.DeepEqual(prev, rec) {
			delta[id] = rec.Status
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffKeys(old, new *RunState) []string {
	newRaw := topLevel(new)
	oldRaw := map[string]json.RawMessage{}
	if old != nil {
		oldRaw = topLevel(old)
	}

	var keys []string
	for k, v := range newRaw {
		if prev, ok := oldRaw[k]; !ok || string(prev) != string(v) {
			keys = append(keys, k)
		}
	}
	for k := range oldRaw {
		if _, ok := newRaw[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func topLevel(s *RunState) map[string]json.RawMessage {
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return map[string]json.RawMessage{}
	}
	out := map[string]json.RawMessage{}
	_ = json.Unmarshal(raw, &out)
	return out
}

// IsEmpty checks if the diff contains any changes.
func (d *StateDiff) IsEmpty() bool {
	return d.Status == nil &&
		d.Phase == nil &&
		len(d.Steps) == 0 &&
		len(d.Keys) == 0
}
