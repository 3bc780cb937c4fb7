package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/tool"
	"github.com/scanguard/scanguard/pkg/ui"
)

// runTools prints the configured catalog.
func runTools(args []string) {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	showFlags := fs.Bool("flags", false, "Also list every tool's allowed flags")
	jsonOut := fs.Bool("json", false, "Print the catalog as JSON")
	common := addCommonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s tools [flags] [name...]\n\n", defaults.ToolName)
		fmt.Fprintf(os.Stderr, "List the tool catalog after configuration overrides.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		exitWithError("%v", err)
	}

	cfg, err := common.load()
	if err != nil {
		exitWithError("configuration: %v", err)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		exitWithError("%v", err)
	}

	descs, err := selectTools(catalog, fs.Args())
	if err != nil {
		exitWithUsage(err.Error(), defaults.ToolName+" tools [name...]")
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(descs); err != nil {
			exitWithError("%v", err)
		}
		return
	}

	ui.RenderCatalog(os.Stdout, descs)
	if *showFlags {
		width := 80
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
			width = w
		}
		for _, d := range descs {
			fmt.Fprintln(os.Stdout)
			ui.RenderFlags(os.Stdout, d, width)
		}
	}
}

// selectTools returns the named descriptors, or the whole catalog when no
// names are given.
func selectTools(catalog *tool.Catalog, names []string) ([]tool.Descriptor, error) {
	if len(names) == 0 {
		return catalog.All(), nil
	}
	out := make([]tool.Descriptor, 0, len(names))
	for _, n := range names {
		d, ok := catalog.Get(n)
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}
