package main

import (
	"fmt"

	"github.com/spf13/cobra"
	silvan "github.com/stevekinney/silvan-sub003"
	"github.com/stevekinney/silvan-sub003/internal/cli"
	"github.com/stevekinney/silvan-sub003/internal/presentation/tui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of silvan",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cli.NewOutput(cmd.OutOrStdout(), globalOpts.Plain, false)
		if out.TTY() {
			tui.PrintBanner(cmd.OutOrStdout(), out.Profile())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "silvan version %s\n", silvan.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
