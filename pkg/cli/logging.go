package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/scanguard/scanguard/pkg/ui"
)

// NewLogger builds the process logger. format is "json", "text" or "auto";
// auto picks text when w is an interactive terminal and JSON otherwise.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if useText(w, format) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func useText(w io.Writer, format string) bool {
	switch strings.ToLower(format) {
	case "text":
		return true
	case "json":
		return false
	}
	return ui.IsTerminal(w)
}
