// Package main is the entry point for the pyjob CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fsimkovic/pyjob/cmd"
	"github.com/fsimkovic/pyjob/internal/core"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var execErr *core.ExecutionError
		if errors.As(err, &execErr) && execErr.ExitCode > 0 {
			os.Exit(execErr.ExitCode)
		}
		os.Exit(1)
	}
}
