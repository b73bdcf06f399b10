// Package command provides the command definitions for the snapbridge and
// snapbridge-ext binaries.
//
// It uses urfave/cli/v2 for command parsing. Configuration comes from the
// optional --config file, SNAPBRIDGE_* environment variables and flags,
// in increasing priority.
package command
