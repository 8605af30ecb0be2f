package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stevekinney/silvan-sub003/internal/cli"
	"github.com/stevekinney/silvan-sub003/internal/presentation/tui"
	"github.com/stevekinney/silvan-sub003/pkg/ciwait"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

var ciWaitCmd = &cobra.Command{
	Use:   "ci-wait <run-id>",
	Short: "Wait for CI checks to settle",
	Long: `Polls ci.command until it stops reporting pending. Exit status 0 means
passed and ci.pendingExitCode means still running; anything else is a failure.
The outcome is recorded in the run's summary.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		interval, _ := cmd.Flags().GetDuration("interval")

		return withApp(cmd, func(app *cli.App) error {
			check, err := app.CICheck()
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = app.Config.CI.Timeout
			}
			if interval <= 0 {
				interval = app.Config.CI.Interval
			}

			state, waitErr := app.Workspace.AwaitCI(cmd.Context(), args[0], check,
				ciwait.WithTimeout(timeout),
				ciwait.WithInterval(interval),
			)
			if domain.KindOf(waitErr) == domain.KindCanceled {
				return waitErr
			}
			conv, err := app.Workspace.Convergence(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if app.Out.JSONMode() {
				if err := app.Out.JSON(map[string]any{"runId": args[0], "ci": state, "convergence": conv}); err != nil {
					return err
				}
			} else {
				app.Out.Printf("  ci: %s\n", state)
				app.Out.Println(tui.StatusLine(args[0], conv, app.Out.Profile()))
			}
			if waitErr != nil {
				return fmt.Errorf("ci %s: %w", state, waitErr)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(ciWaitCmd)
	f := ciWaitCmd.Flags()
	f.Duration("timeout", 0, "Total wait budget (default: ci.timeout)")
	f.Duration("interval", 0, "Delay between checks (default: ci.interval)")
}
