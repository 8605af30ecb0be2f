package cli

import (
	"errors"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitInterrupted = 130
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrCanceled), domain.KindOf(err) == domain.KindCanceled:
		return ExitInterrupted
	default:
		return ExitError
	}
}
