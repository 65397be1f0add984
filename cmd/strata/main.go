// Command strata compiles and runs statements from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/coregx/strata/cmd/strata/commands"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return commands.NewRootCommand().Execute()
}
