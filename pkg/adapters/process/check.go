package process

import (
	"context"

	"github.com/stevekinney/silvan-sub003/pkg/ciwait"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// DefaultPendingExitCode is the exit status `gh pr checks` uses while checks are still running.
const DefaultPendingExitCode = 8

// CheckCommand adapts a status command to a CI check: exit 0 means passed,
// pendingExitCode means pending and any other status means failed.
func CheckCommand(exec Executor, c CommandConfig, pendingExitCode int) ciwait.Check {
	return func(ctx context.Context) (string, error) {
		res, err := exec.Run(ctx, Command{Path: c.Command, Args: c.Args, Env: c.Environment})
		if err != nil {
			return "", err
		}
		switch res.ExitCode {
		case 0:
			return domain.CIPassed, nil
		case pendingExitCode:
			return domain.CIPending, nil
		default:
			return domain.CIFailed, nil
		}
	}
}
