package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/scanguard/scanguard/pkg/tool"
)

// Color palette
var (
	Primary   = lipgloss.Color("#2E86DE")
	Secondary = lipgloss.Color("#00D4AA")

	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
	Info    = lipgloss.Color("#4D96FF")
	Muted   = lipgloss.Color("#6B7280")
	Bright  = lipgloss.Color("#FAFAFA")
)

// Pre-configured styles
var (
	BannerStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	VersionStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SectionStyle = lipgloss.NewStyle().
			Foreground(Bright).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Width(14)

	ValueStyle = lipgloss.NewStyle().
			Foreground(Bright)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(Bright).
			Bold(true).
			Underline(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(Info)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Primary)
)

// KindStyle returns the style for an invocation outcome.
func KindStyle(kind tool.ErrorKind) lipgloss.Style {
	switch kind {
	case tool.KindNone:
		return SuccessStyle
	case tool.KindValidation, tool.KindResourceExhausted, tool.KindCircuitOpen:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

// StateStyle returns the style for a breaker state name.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "CLOSED":
		return SuccessStyle
	case "HALF_OPEN":
		return WarningStyle
	case "OPEN":
		return ErrorStyle
	default:
		return MutedStyle
	}
}
