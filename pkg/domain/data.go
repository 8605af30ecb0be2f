package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Well-known keys of RunState.Data.
const (
	KeyRun                        = "run"
	KeySteps                      = "steps"
	KeyArtifactsIndex             = "artifactsIndex"
	KeySummary                    = "summary"
	KeyLocalGateSummary           = "localGateSummary"
	KeyVerificationAutoFixSummary = "verificationAutoFixSummary"
)

// RunData is the typed body of a run document.
// Keys this version does not know about are kept verbatim in Extra and written
// back untouched, so newer phase summaries survive a round-trip through older code.
type RunData struct {
	Run                        RunRecord                           `json:"run"`
	Steps                      map[string]*StepRecord              `json:"steps"`
	ArtifactsIndex             map[string]map[string]ArtifactEntry `json:"artifactsIndex"`
	Summary                    *Summary                            `json:"summary,omitempty"`
	LocalGateSummary           *LocalGateSummary                   `json:"localGateSummary,omitempty"`
	VerificationAutoFixSummary *AutoFixSummary                     `json:"verificationAutoFixSummary,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON merges the typed fields with Extra.
func (d RunData) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Extra)+6)
	for k, v := range d.Extra {
		out[k] = v
	}

	steps := d.Steps
	if steps == nil {
		steps = map[string]*StepRecord{}
	}
	index := d.ArtifactsIndex
	if index == nil {
		index = map[string]map[string]ArtifactEntry{}
	}

	fields := []struct {
		key   string
		value any
		skip  bool
	}{
		{KeyRun, d.Run, false},
		{KeySteps, steps, false},
		{KeyArtifactsIndex, index, false},
		{KeySummary, d.Summary, d.Summary == nil},
		{KeyLocalGateSummary, d.LocalGateSummary, d.LocalGateSummary == nil},
		{KeyVerificationAutoFixSummary, d.VerificationAutoFixSummary, d.VerificationAutoFixSummary == nil},
	}
	for _, f := range fields {
		if f.skip {
			continue
		}
		raw, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", f.key, err)
		}
		out[f.key] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the document into typed fields and Extra.
func (d *RunData) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*d = RunData{}
	targets := map[string]any{
		KeyRun:            &d.Run,
		KeySteps:          &d.Steps,
		KeyArtifactsIndex: &d.ArtifactsIndex,
	}
	for key, value := range raw {
		if target, ok := targets[key]; ok {
			if err := json.Unmarshal(value, target); err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			continue
		}
		var err error
		switch key {
		case KeySummary:
			d.Summary = &Summary{}
			err = json.Unmarshal(value, d.Summary)
		case KeyLocalGateSummary:
			d.LocalGateSummary = &LocalGateSummary{}
			err = json.Unmarshal(value, d.LocalGateSummary)
		case KeyVerificationAutoFixSummary:
			d.VerificationAutoFixSummary = &AutoFixSummary{}
			err = json.Unmarshal(value, d.VerificationAutoFixSummary)
		default:
			if d.Extra == nil {
				d.Extra = make(map[string]json.RawMessage)
			}
			d.Extra[key] = value
		}
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if d.Steps == nil {
		d.Steps = make(map[string]*StepRecord)
	}
	// A null step record carries nothing to resume from.
	for id, rec := range d.Steps {
		if rec == nil {
			delete(d.Steps, id)
		}
	}
	if d.ArtifactsIndex == nil {
		d.ArtifactsIndex = make(map[string]map[string]ArtifactEntry)
	}
	for id, entries := range d.ArtifactsIndex {
		if entries == nil {
			delete(d.ArtifactsIndex, id)
		}
	}
	return nil
}

// Keys returns every top-level key present in the data bag, sorted.
func (d RunData) Keys() []string {
	keys := []string{KeyRun, KeySteps, KeyArtifactsIndex}
	if d.Summary != nil {
		keys = append(keys, KeySummary)
	}
	if d.LocalGateSummary != nil {
		keys = append(keys, KeyLocalGateSummary)
	}
	if d.VerificationAutoFixSummary != nil {
		keys = append(keys, KeyVerificationAutoFixSummary)
	}
	for k := range d.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalDocument encodes a run document in its compact canonical form.
func MarshalDocument(s *RunState) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalDocument decodes a run document and fills in defaults for missing collections.
func UnmarshalDocument(b []byte) (*RunState, error) {
	var s RunState
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}
	if s.RunID == "" {
		return nil, fmt.Errorf("run document has no runId")
	}
	if s.Data.Steps == nil {
		s.Data.Steps = make(map[string]*StepRecord)
	}
	if s.Data.ArtifactsIndex == nil {
		s.Data.ArtifactsIndex = make(map[string]map[string]ArtifactEntry)
	}
	return &s, nil
}

// Digest returns the content digest of a run document.
func Digest(s *RunState) (string, error) {
	raw, err := MarshalDocument(s)
	if err != nil {
		return "", err
	}
	return DigestBytes(raw), nil
}

// DigestBytes hashes an arbitrary serialized payload.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// DigestValue hashes the JSON encoding of v.
func DigestValue(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return DigestBytes(raw), nil
}

func sortStrings(s []string) {
	sort.Strings(s)
}
