// Package main is the entry point for the branchwatch CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/evgops/branchwatch/cmd"
	"github.com/evgops/branchwatch/internal/logging"
)

// main executes the root command and handles any errors that occur.
func main() {
	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
