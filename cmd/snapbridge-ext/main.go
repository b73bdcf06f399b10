// Package main provides the entry point for snapbridge-ext, the reference
// extension that receives snapshots from snapbridge.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/snapbridge/internal/cli/command"
)

func main() {
	if err := command.ExtensionApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
