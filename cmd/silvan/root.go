package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/stevekinney/silvan-sub003/internal/cli"
)

var globalOpts cli.Options

var rootCmd = &cobra.Command{
	Use:   "silvan",
	Short: "Silvan records, inspects and converges long-running repository runs",
	Long: `Silvan keeps a durable record of every run: its steps, artifacts and audit trail.
Inspection commands derive a single convergence verdict from that record.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalOpts.Dir, "dir", ".", "Repository root")
	pf.StringVar(&globalOpts.ConfigPath, "config", "", "Config file (default <dir>/.silvan/config.yaml)")
	pf.StringVar(&globalOpts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&globalOpts.Backend, "backend", "", "State backend override: file, memory, redis")
	pf.BoolVar(&globalOpts.Plain, "plain", false, "Disable colors and markdown rendering")
	pf.BoolVar(&globalOpts.JSON, "json", false, "Print results as JSON")
}

// withApp opens the workspace for the duration of fn.
func withApp(cmd *cobra.Command, fn func(app *cli.App) error) error {
	opts := globalOpts
	opts.Stdout = cmd.OutOrStdout()
	app, err := cli.Open(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(cmd.Context()))
	return fn(app)
}

func operator() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "operator"
}
