package domain

import (
	"sort"
	"time"
)

// ArtifactKind describes how an artifact payload is serialized on disk.
type ArtifactKind string

const (
	ArtifactJSON ArtifactKind = "json"
	ArtifactText ArtifactKind = "text"
)

// Artifact names with meaning to convergence.
const (
	ArtifactAbort     = "abort"
	ArtifactOverrides = "overrides"
)

// ArtifactEntry addresses one artifact file. Entries are immutable once written;
// a later write for the same (StepID, Name) produces a new entry.
type ArtifactEntry struct {
	StepID    string       `json:"stepId"`
	Name      string       `json:"name"`
	Path      string       `json:"path"`
	Digest    string       `json:"digest"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Kind      ArtifactKind `json:"kind"`
}

// SortArtifacts orders entries by step then name for stable output.
func SortArtifacts(entries []ArtifactEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StepID != entries[j].StepID {
			return entries[i].StepID < entries[j].StepID
		}
		return entries[i].Name < entries[j].Name
	})
}

// HasArtifact reports whether any entry carries the given name.
func HasArtifact(entries []ArtifactEntry, name string) bool {
	_, ok := FindArtifact(entries, name)
	return ok
}

// FindArtifact returns the first entry with the given name.
func FindArtifact(entries []ArtifactEntry, name string) (ArtifactEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return ArtifactEntry{}, false
}
