package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stevekinney/silvan-sub003/internal/cli"
	"github.com/stevekinney/silvan-sub003/internal/presentation/tui"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run verification commands with bounded auto-fix",
	Long: `Runs verify.commands inside a run's verify phase. When checks fail and
autofix.commands are configured, at most one fix attempt is made per invocation.
The outcome is recorded as the run's local gate.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		commit, _ := cmd.Flags().GetBool("checkpoint")
		message, _ := cmd.Flags().GetString("message")
		finish, _ := cmd.Flags().GetBool("finish")

		return withApp(cmd, func(app *cli.App) error {
			setup, err := app.Verify(dryRun, commit, message)
			if err != nil {
				return err
			}
			setup.Options.Finish = finish
			if runID == "" {
				runID = app.Workspace.NewRunID()
			}

			res, err := app.Workspace.Verify(cmd.Context(), runID, setup.Verifier, setup.Options)
			if err != nil {
				return err
			}
			if app.Out.JSONMode() {
				if err := app.Out.JSON(res); err != nil {
					return err
				}
			} else {
				for _, r := range res.Report.Results {
					mark := "ok"
					if r.Failed() {
						mark = fmt.Sprintf("exit %d", r.ExitCode)
					}
					app.Out.Printf("  %-24s %s\n", r.Name, mark)
				}
				if af := res.AutoFix; af != nil {
					app.Out.Printf("  auto-fix: %s %s\n", af.Status, af.ReasonCode)
				}
				if res.Checkpoint != nil && res.Checkpoint.SHA != "" {
					app.Out.Printf("  checkpoint: %s\n", res.Checkpoint.SHA)
				}
				app.Out.Println(tui.StatusLine(runID, res.Convergence, app.Out.Profile()))
			}
			if !res.Report.OK {
				return fmt.Errorf("verification failed: %d check(s) failing", len(res.Report.Failures()))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	f := verifyCmd.Flags()
	f.String("run", "", "Run id to resume (default: a new run)")
	f.Bool("dry-run", false, "Plan fixes without applying them")
	f.Bool("checkpoint", false, "Commit the working tree after verification passes")
	f.String("message", "", "Checkpoint commit message")
	f.Bool("finish", false, "Finish the run as succeeded once verification passes")
}
