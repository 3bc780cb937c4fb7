// Command scanguard runs network scanners on behalf of an AI agent inside an
// authorized lab. See "scanguard help" for the subcommands.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/ui"
)

func printUsage() {
	ui.PrintBanner(os.Stderr)
	fmt.Fprintf(os.Stderr, `Usage: %[1]s <command> [flags]

Commands:
  mcp        Serve the tool catalog over MCP (stdio or streamable HTTP)
  run        Run one tool once and print the result
  tools      List the tool catalog
  validate   Check whether a target is inside the authorized scope
  version    Print version information

Run "%[1]s <command> -h" for command flags.

Environment variables:
  SCANGUARD_CONFIG      Configuration file (same as --config)
  SCANGUARD_HTTP_ADDR   HTTP listen address for "mcp" (same as --http)
  SCANGUARD_LOG_LEVEL   debug, info, warn or error
  SCANGUARD_BIN_DIRS    Directories searched for scanner binaries
  SCANGUARD_LAB_SUFFIX  Hostname suffix of the lab domain
`, defaults.ToolName)
}

func printVersion() {
	fmt.Printf("%s %s (commit %s, %s, %s/%s)\n",
		defaults.ToolName, ui.Version, ui.Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(defaults.ExitUserError)
	}

	switch os.Args[1] {
	case "mcp", "serve":
		runMCP(os.Args[2:])
	case "run":
		os.Exit(runTool(os.Args[2:]))
	case "tools", "list":
		runTools(os.Args[2:])
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "version", "-v", "--version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		exitWithUsage(fmt.Sprintf("unknown command %q", os.Args[1]), defaults.ToolName+" <command> [flags]")
	}
}
