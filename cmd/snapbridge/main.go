// Package main provides the entry point for snapbridge.
//
// snapbridge starts an extension process and hands it snapshots over a
// pipe, temporary files or shared memory, cleaning each one up once the
// extension acknowledges it.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/snapbridge/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
