// Package ui renders scanguard's human-facing CLI output: the banner, the
// tool catalog table, run results and status lines. Machine-readable output
// (--json, MCP responses, the event log) never goes through this package.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/scanguard/scanguard/pkg/defaults"
)

// Version information - these can be overridden at build time via ldflags:
// go build -ldflags "-X github.com/scanguard/scanguard/pkg/ui.Commit=abc123"
var (
	Version = defaults.Version
	Commit  = "dev"
)

// UserAgent returns the "scanguard/X.Y.Z" prefix used in start-up lines.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", defaults.ToolName, Version)
}

var (
	noColorMode bool
	uiMu        sync.RWMutex
)

// SetNoColor disables colored output for the whole process.
func SetNoColor(noColor bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	noColorMode = noColor
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor returns whether color is disabled.
func IsNoColor() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return noColorMode
}

const bannerArt = `
  ___  ___ __ _ _ __   __ _ _   _  __ _ _ __ __| |
 / __|/ __/ _' | '_ \ / _' | | | |/ _' | '__/ _' |
 \__ \ (_| (_| | | | | (_| | |_| | (_| | | | (_| |
 |___/\___\__,_|_| |_|\__, |\__,_|\__,_|_|  \__,_|
                      |___/`

// PrintBanner writes the banner and version to w.
func PrintBanner(w io.Writer) {
	fmt.Fprintln(w, BannerStyle.Render(bannerArt))
	fmt.Fprintf(w, "  guarded scanner gateway %s\n\n", VersionStyle.Render("v"+Version))
}

// PrintSuccess prints a success line to stderr.
func PrintSuccess(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", SuccessStyle.Render(Icon("✔", "[+]")), message)
}

// PrintError prints an error line to stderr.
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render(Icon("✖", "[-]")), message)
}

// PrintWarning prints a warning line to stderr.
func PrintWarning(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningStyle.Render(Icon("⚠", "[!]")), message)
}

// PrintInfo prints an informational line to stderr.
func PrintInfo(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", InfoStyle.Render(Icon("ℹ", "[*]")), message)
}
