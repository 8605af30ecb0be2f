package domain

import "strings"

// ValidateRunID rejects ids that are empty or could address a path outside
// the directory they are joined to.
func ValidateRunID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\\x00") || strings.Contains(id, "..") {
		return &Error{
			Kind:    KindInvariant,
			Op:      "run.id",
			Message: ErrInvalidRunID.Message,
			Details: map[string]any{"runId": id},
			Err:     ErrInvalidRunID,
		}
	}
	return nil
}
