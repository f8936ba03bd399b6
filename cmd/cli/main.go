// Package main is the entry point for the labelplane CLI.
// The CLI is the operator terminal tool for interacting with the labelplane API.
package main

import (
	"os"

	"labelplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
