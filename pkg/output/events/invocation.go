package events

import (
	"time"

	"github.com/scanguard/scanguard/pkg/tool"
)

// InvocationEvent describes one completed Execute call. Time is the
// completion time; Started is when the call entered the orchestrator.
type InvocationEvent struct {
	BaseEvent
	Tool         string         `json:"tool"`
	Target       string         `json:"target,omitempty"`
	Args         []string       `json:"args,omitempty"`
	Outcome      Outcome        `json:"outcome"`
	ErrorKind    tool.ErrorKind `json:"error_kind,omitempty"`
	Error        string         `json:"error,omitempty"`
	ExitCode     int            `json:"exit_code"`
	TimedOut     bool           `json:"timed_out"`
	Truncated    bool           `json:"truncated"`
	Started      time.Time      `json:"started"`
	Duration     time.Duration  `json:"duration"`
	BreakerState string         `json:"breaker_state"`
	Trial        bool           `json:"trial,omitempty"`
}

// NewInvocationEvent builds an event from a finished result. args must
// already be redacted.
func NewInvocationEvent(toolName, target string, args []string, res tool.Result, started time.Time, breakerState string) *InvocationEvent {
	return &InvocationEvent{
		BaseEvent: BaseEvent{
			Type:          EventTypeInvocation,
			Time:          started.Add(res.ExecutionDuration),
			CorrelationID: res.CorrelationID,
		},
		Tool:         toolName,
		Target:       target,
		Args:         args,
		Outcome:      OutcomeOf(res.ErrorKind),
		ErrorKind:    res.ErrorKind,
		Error:        res.Error,
		ExitCode:     res.ExitCode,
		TimedOut:     res.TimedOut,
		Truncated:    res.Truncated(),
		Started:      started,
		Duration:     res.ExecutionDuration,
		BreakerState: breakerState,
	}
}

// Ran reports whether a process was spawned, or attempted, for this call.
func (e *InvocationEvent) Ran() bool { return e.ErrorKind.Ran() }
