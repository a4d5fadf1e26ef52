// Package main is the entry point for the fiscalsync CLI.
// The CLI is the operator terminal tool for interacting with the fiscalsync API.
package main

import (
	"os"

	"fiscalsync/cmd/fiscalctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
