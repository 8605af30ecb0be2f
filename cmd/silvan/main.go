package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stevekinney/silvan-sub003/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	sc := cli.NewSignalContext(context.Background())
	defer sc.Stop()

	err := rootCmd.ExecuteContext(sc)
	if err == nil {
		return cli.ExitOK
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	if sc.Signal() != nil {
		return cli.ExitInterrupted
	}
	return cli.ExitCode(err)
}
