package main

import (
	"fmt"
	"os"

	"github.com/patchfleet/patchfleet/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the patchfleet command-line application.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		os.Exit(1)
	}
}
