package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/output/exitcode"
	"github.com/scanguard/scanguard/pkg/target"
	"github.com/scanguard/scanguard/pkg/tool"
	"github.com/scanguard/scanguard/pkg/ui"
)

// runValidate checks targets against the authorized scope without running
// anything. It exits with the rejected code when any target fails.
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	allowRanges := fs.Bool("ranges", true, "Accept CIDR ranges")
	common := addCommonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s validate [flags] <target>...\n\n", defaults.ToolName)
		fmt.Fprintf(os.Stderr, "Report whether each target is inside the authorized lab scope.\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s validate 10.0.0.5 web01.lab.internal\n", defaults.ToolName)
		fmt.Fprintf(os.Stderr, "  %s validate --ranges=false 192.168.1.0/24\n\n", defaults.ToolName)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return defaults.ExitUserError
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return defaults.ExitUserError
	}

	cfg, err := common.load()
	if err != nil {
		ui.PrintError(fmt.Sprintf("configuration: %v", err))
		return defaults.ExitUserError
	}
	v, err := target.New(cfg.TargetConfig())
	if err != nil {
		ui.PrintError(err.Error())
		return defaults.ExitUserError
	}

	return validateTargets(os.Stdout, v, fs.Args(), *allowRanges)
}

func validateTargets(w io.Writer, v *target.Validator, raws []string, allowRanges bool) int {
	codes := exitcode.New()
	for _, raw := range raws {
		t, err := v.ValidateFor(raw, allowRanges)
		if err != nil {
			fmt.Fprintf(w, "%s %s\n", ui.ErrorStyle.Render("rejected"), err)
			codes.Record(tool.KindValidation)
			continue
		}
		codes.Record(tool.KindNone)
		ui.RenderTarget(w, raw, t)
	}
	code, _ := codes.ExitCode()
	return int(code)
}
