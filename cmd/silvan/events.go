package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"github.com/stevekinney/silvan-sub003/internal/cli"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

var eventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "Print the audit trail of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		return withApp(cmd, func(app *cli.App) error {
			if _, err := app.Workspace.Inspect(cmd.Context(), args[0]); err != nil {
				return err
			}
			events, err := app.Workspace.Events(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			filtered := make([]domain.Event, 0, len(events))
			for _, ev := range events {
				if typ == "" || string(ev.Type) == typ {
					filtered = append(filtered, ev)
				}
			}
			if app.Out.JSONMode() {
				return app.Out.JSON(filtered)
			}
			for _, ev := range filtered {
				payload, _ := json.Marshal(ev.Payload)
				app.Out.Printf("%s  %-5s  %-18s %s\n", ev.TS.Format(time.RFC3339), ev.Level, ev.Type, payload)
				if ev.Error != nil {
					app.Out.Printf("    %s: %s\n", ev.Error.Name, ev.Error.Message)
				}
			}
			return nil
		})
	},
}

var artifactCmd = &cobra.Command{
	Use:   "artifact <run-id> <step-id> <name>",
	Short: "Print the content of an indexed artifact",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			_, data, err := app.Workspace.Artifact(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			_, err = app.Out.Writer().Write(data)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(artifactCmd)
	eventsCmd.Flags().String("type", "", "Only print events of this type, e.g. run.step")
}
