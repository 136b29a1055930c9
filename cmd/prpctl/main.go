// Command prpctl is the CLI boundary in front of the control loop
// package documented in internal/system: argument parsing and the
// interactive wizard are out of scope for the core (spec.md §1), so
// this binary is nothing but internal/cli.Execute.
package main

import (
	"fmt"
	"os"

	"github.com/andywolf/prpctl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
