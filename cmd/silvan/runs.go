package main

import (
	"github.com/spf13/cobra"
	"github.com/stevekinney/silvan-sub003/internal/cli"
	"github.com/stevekinney/silvan-sub003/internal/presentation/graph"
	"github.com/stevekinney/silvan-sub003/internal/presentation/tui"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List and inspect recorded runs",
}

type runLine struct {
	RunID       string                `json:"runId"`
	Status      domain.RunStatus      `json:"status"`
	Phase       string                `json:"phase"`
	Convergence domain.RunConvergence `json:"convergence"`
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all runs with their convergence status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			ws := app.Workspace
			ids, err := ws.ListRuns(cmd.Context())
			if err != nil {
				return err
			}

			lines := make([]runLine, 0, len(ids))
			for _, id := range ids {
				st, err := ws.Inspect(cmd.Context(), id)
				if err != nil {
					app.Logger.Warn("skipping unreadable run", "run_id", id, "error", err)
					continue
				}
				conv, err := ws.Convergence(cmd.Context(), id)
				if err != nil {
					return err
				}
				lines = append(lines, runLine{RunID: id, Status: st.Data.Run.Status, Phase: st.Data.Run.Phase, Convergence: conv})
			}

			if app.Out.JSONMode() {
				return app.Out.JSON(lines)
			}
			if len(lines) == 0 {
				app.Out.Println("No runs found.")
				return nil
			}
			for _, l := range lines {
				app.Out.Println(tui.StatusLine(l.RunID, l.Convergence, app.Out.Profile()))
			}
			return nil
		})
	},
}

var runsInspectCmd = &cobra.Command{
	Use:   "inspect <run-id>",
	Short: "Show the full record of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asGraph, _ := cmd.Flags().GetBool("graph")
		return withApp(cmd, func(app *cli.App) error {
			report, err := app.Workspace.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch {
			case asGraph:
				app.Out.Printf("%s", graph.GenerateMermaid(report.State, &graph.Overlay{Convergence: &report.Convergence}))
				return nil
			case app.Out.JSONMode():
				return app.Out.JSON(report)
			default:
				return app.Out.Markdown(tui.RunReport(report))
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsLsCmd)
	runsCmd.AddCommand(runsInspectCmd)
	runsInspectCmd.Flags().Bool("graph", false, "Print the step timeline as a Mermaid flowchart")
}
