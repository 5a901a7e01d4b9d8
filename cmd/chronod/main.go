// Command chronod runs and talks to causal clock nodes.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/chronod/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
