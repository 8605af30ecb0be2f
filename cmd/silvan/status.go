package main

import (
	"github.com/spf13/cobra"
	"github.com/stevekinney/silvan-sub003/internal/cli"
	"github.com/stevekinney/silvan-sub003/internal/presentation/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Print the convergence verdict of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			conv, err := app.Workspace.Convergence(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if app.Out.JSONMode() {
				return app.Out.JSON(conv)
			}
			app.Out.Println(tui.StatusLine(args[0], conv, app.Out.Profile()))
			for _, a := range conv.BlockingArtifacts {
				app.Out.Printf("  blocking: %s/%s\n", a.StepID, a.Name)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
