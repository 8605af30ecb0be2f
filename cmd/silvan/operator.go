package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/stevekinney/silvan-sub003/internal/cli"
	"github.com/stevekinney/silvan-sub003/internal/presentation/tui"
)

var overrideCmd = &cobra.Command{
	Use:   "override <run-id>",
	Short: "Proceed despite local gate blockers",
	Long:  `Records an overrides artifact. The local gate no longer holds the run at waiting_for_user.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		by, _ := cmd.Flags().GetString("by")
		return withApp(cmd, func(app *cli.App) error {
			entry, err := app.Workspace.Override(cmd.Context(), args[0], reason, by)
			if err != nil {
				return err
			}
			if app.Out.JSONMode() {
				return app.Out.JSON(entry)
			}
			return printStatus(cmd, app, args[0])
		})
	},
}

var abortCmd = &cobra.Command{
	Use:   "abort <run-id>",
	Short: "Abort a run",
	Long:  `Records an abort artifact and finishes the run as canceled.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		by, _ := cmd.Flags().GetString("by")
		if reason == "" {
			return errors.New("--reason is required")
		}
		return withApp(cmd, func(app *cli.App) error {
			if err := app.Workspace.Abort(cmd.Context(), args[0], reason, by); err != nil {
				return err
			}
			return printStatus(cmd, app, args[0])
		})
	},
}

func printStatus(cmd *cobra.Command, app *cli.App, runID string) error {
	conv, err := app.Workspace.Convergence(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if app.Out.JSONMode() {
		return app.Out.JSON(conv)
	}
	app.Out.Println(tui.StatusLine(runID, conv, app.Out.Profile()))
	return nil
}

func init() {
	for _, c := range []*cobra.Command{overrideCmd, abortCmd} {
		rootCmd.AddCommand(c)
		c.Flags().String("reason", "", "Why the operator decided this")
		c.Flags().String("by", operator(), "Who decided")
	}
}
