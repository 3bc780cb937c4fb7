package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/scanguard/scanguard/pkg/cli"
	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/duration"
	"github.com/scanguard/scanguard/pkg/output/exitcode"
	"github.com/scanguard/scanguard/pkg/tool"
	"github.com/scanguard/scanguard/pkg/ui"
)

// runTool executes one invocation through the same executor the MCP server
// uses and returns the process exit code.
func runTool(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	toolName := fs.String("tool", "", "Tool to run (see '"+defaults.ToolName+" tools')")
	targetArg := fs.String("target", "", "Target address, CIDR range or lab hostname")
	argString := fs.String("args", "", "Argument string passed to the tool")
	timeout := fs.Duration("timeout", 0, "Timeout override, bounded by the tool's max timeout")
	correlationID := fs.String("correlation-id", "", "Correlation id to attach (generated when empty)")
	jsonOut := fs.Bool("json", false, "Print the result as JSON")
	common := addCommonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s run --tool <name> --target <target> [--args \"...\"] [flags]\n\n", defaults.ToolName)
		fmt.Fprintf(os.Stderr, "Run one scanner once, with the same validation, limits and circuit\nbreaking as the MCP server.\n\n")
		fmt.Fprintf(os.Stderr, "Exit codes:\n")
		for _, c := range []exitcode.Code{exitcode.Success, exitcode.ToolFailed, exitcode.Rejected, exitcode.Unavailable, exitcode.Interrupted} {
			fmt.Fprintf(os.Stderr, "  %d  %s\n", c, exitcode.CodeDescription(c))
		}
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s run --tool nmap --target 10.0.0.5 --args \"-sV -p 22,80\"\n", defaults.ToolName)
		fmt.Fprintf(os.Stderr, "  %s run --tool nmap --target 10.0.0.0/28 --args \"-sn\" --json\n\n", defaults.ToolName)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return defaults.ExitUserError
	}
	if *toolName == "" || *targetArg == "" {
		fs.Usage()
		return defaults.ExitUserError
	}

	cfg, err := common.load()
	if err != nil {
		ui.PrintError(fmt.Sprintf("configuration: %v", err))
		return defaults.ExitUserError
	}
	gw, err := buildGateway(cfg, common.logger(cfg, os.Stderr), false)
	if err != nil {
		ui.PrintError(err.Error())
		return defaults.ExitInternalError
	}
	defer gw.close()

	ctx, cancel := cli.SignalContext(context.Background(), duration.ShutdownGrace, os.Stderr)
	defer cancel()

	activity := ui.StartActivity(os.Stderr, fmt.Sprintf("%s %s", *toolName, *targetArg))
	res := gw.exec.Execute(ctx, *toolName, tool.Request{
		Target:          *targetArg,
		ArgumentString:  *argString,
		TimeoutOverride: *timeout,
		CorrelationID:   *correlationID,
	})
	activity.Stop()

	codes := exitcode.New()
	codes.RecordResult(res)
	if ctx.Err() != nil {
		codes.SetInterrupted()
	}
	if err := printResult(os.Stdout, *toolName, res, *jsonOut); err != nil {
		ui.PrintError(err.Error())
		codes.SetInternalError()
	}
	code, _ := codes.ExitCode()
	return int(code)
}

func printResult(w io.Writer, toolName string, res tool.Result, asJSON bool) error {
	if !asJSON {
		ui.RenderResult(w, toolName, res)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Tool string `json:"tool"`
		tool.Result
		DurationMS int64 `json:"duration_ms"`
	}{toolName, res, res.ExecutionDuration.Milliseconds()})
}
