package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/scanguard/scanguard/pkg/target"
	"github.com/scanguard/scanguard/pkg/tool"
)

// Label turns an upper-snake identifier such as an error kind or breaker
// state into a human label: "HALF_OPEN" becomes "Half Open".
func Label(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

// FormatCount renders n with thousands separators.
func FormatCount(n uint64) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", LabelStyle.Render(label), ValueStyle.Render(value))
}

// RenderResult writes a human summary of one invocation followed by the
// captured output streams.
func RenderResult(w io.Writer, toolName string, res tool.Result) {
	status := "OK"
	if !res.OK() {
		status = Label(string(res.ErrorKind))
	}
	fmt.Fprintf(w, "%s %s\n", SectionStyle.Render(toolName), KindStyle(res.ErrorKind).Render(status))
	if !res.OK() {
		printField(w, "Error kind", string(res.ErrorKind))
	}
	printField(w, "Exit code", fmt.Sprint(res.ExitCode))
	printField(w, "Duration", res.ExecutionDuration.Round(time.Millisecond).String())
	printField(w, "Correlation", res.CorrelationID)
	if res.Error != "" {
		printField(w, "Error", res.Error)
	}
	if res.Truncated() {
		var streams []string
		if res.TruncatedStdout {
			streams = append(streams, "stdout")
		}
		if res.TruncatedStderr {
			streams = append(streams, "stderr")
		}
		printField(w, "Truncated", strings.Join(streams, ", "))
	}

	renderStream(w, "stdout", res.Stdout)
	renderStream(w, "stderr", res.Stderr)
}

func renderStream(w io.Writer, name, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(w, "\n%s %s\n", HeaderStyle.Render(name), MutedStyle.Render(fmt.Sprintf("(%s bytes)", FormatCount(uint64(len(body))))))
	fmt.Fprint(w, body)
	if !strings.HasSuffix(body, "\n") {
		fmt.Fprintln(w)
	}
}

// RenderCatalog writes the tool catalog as an aligned table.
func RenderCatalog(w io.Writer, descs []tool.Descriptor) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tBINARY\tRANGES\tTIMEOUT\tMAX\tSLOTS\tREQUIRED")
	for _, d := range descs {
		ranges := "no"
		if d.AllowRanges {
			ranges = "yes"
		}
		var required []string
		for _, g := range d.RequiredFlags {
			required = append(required, strings.Join(g, "|"))
		}
		req := "-"
		if len(required) > 0 {
			req = strings.Join(required, " ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			d.Name, d.Binary, ranges, d.DefaultTimeout, d.MaxTimeout, d.Concurrency, req)
	}
	_ = tw.Flush()
}

// RenderFlags writes one tool's allow-list, wrapped to width columns.
func RenderFlags(w io.Writer, d tool.Descriptor, width int) {
	fmt.Fprintf(w, "%s %s\n", SectionStyle.Render(d.Name), MutedStyle.Render(d.Description))
	line := "  "
	for _, f := range d.AllowedFlags {
		if len(line)+len(f)+1 > width && strings.TrimSpace(line) != "" {
			fmt.Fprintln(w, line)
			line = "  "
		}
		line += f + " "
	}
	if strings.TrimSpace(line) != "" {
		fmt.Fprintln(w, line)
	}
}

// RenderTarget writes the normalized form of an accepted target.
func RenderTarget(w io.Writer, raw string, t target.Target) {
	fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("accepted"), raw)
	printField(w, "Kind", t.Kind.String())
	printField(w, "Normalized", t.String())
	if t.Kind != target.KindHostname {
		printField(w, "Addresses", FormatCount(t.Addresses))
	}
}
