package main

import (
	"fmt"
	"os"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/ui"
)

// exitWithError prints a formatted error message and exits with the
// internal-error code.
func exitWithError(format string, args ...any) {
	ui.PrintError(fmt.Sprintf(format, args...))
	os.Exit(defaults.ExitInternalError)
}

// exitWithUsage prints an error message followed by a usage hint, then exits.
func exitWithUsage(msg, usage string) {
	ui.PrintError(msg)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage:", usage)
	os.Exit(defaults.ExitUserError)
}
