package main

import (
	"fmt"
	"os"

	"github.com/roach88/snitchkit/internal/cli"
)

var version = "0.0.0-dev"

func main() {
	cmd := cli.NewRootCommand()
	cmd.Version = version

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
