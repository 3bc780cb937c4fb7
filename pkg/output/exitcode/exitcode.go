// Package exitcode maps invocation outcomes to process exit codes so that
// scripts driving "scanguard run" and "scanguard validate" can branch on
// the reason a call did not succeed.
//
// Exit codes:
//   - 0: Success
//   - 1: Tool failed (execution error, binary not found, timeout)
//   - 2: Request rejected by validation
//   - 3: Tool unavailable (circuit open, no slot, argument ceiling)
//   - 4: Internal error
//   - 5: Interrupted
package exitcode

import (
	"fmt"
	"sync"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/tool"
)

// Code represents a semantic exit code.
type Code int

const (
	Success     Code = defaults.ExitSuccess
	ToolFailed  Code = defaults.ExitToolFailed
	Rejected    Code = defaults.ExitUserError
	Unavailable Code = defaults.ExitUnavailable
	Internal    Code = defaults.ExitInternalError
	Interrupted Code = defaults.ExitInterrupted
)

var codeStrings = map[Code]string{
	Success:     "success",
	ToolFailed:  "tool_failed",
	Rejected:    "rejected",
	Unavailable: "unavailable",
	Internal:    "internal_error",
	Interrupted: "interrupted",
}

var codeDescriptions = map[Code]string{
	Success:     "Every invocation succeeded",
	ToolFailed:  "A tool ran and failed, timed out, or was not installed",
	Rejected:    "A request was rejected before anything ran",
	Unavailable: "A tool was temporarily unavailable; retry later",
	Internal:    "An unexpected internal error occurred",
	Interrupted: "Stopped by user or signal",
}

// ForKind returns the code a single outcome of kind maps to.
func ForKind(kind tool.ErrorKind) Code {
	switch kind {
	case tool.KindNone:
		return Success
	case tool.KindValidation:
		return Rejected
	case tool.KindCircuitOpen, tool.KindResourceExhausted:
		return Unavailable
	default:
		return ToolFailed
	}
}

// Manager accumulates outcomes and picks the exit code for the process.
type Manager struct {
	mu          sync.Mutex
	counts      map[tool.ErrorKind]int
	internal    bool
	interrupted bool
}

// New creates an empty manager.
func New() *Manager {
	return &Manager{counts: make(map[tool.ErrorKind]int)}
}

// Record counts one outcome.
func (m *Manager) Record(kind tool.ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[kind]++
}

// RecordResult counts a result's outcome.
func (m *Manager) RecordResult(res tool.Result) { m.Record(res.ErrorKind) }

// SetInternalError marks that the command itself failed.
func (m *Manager) SetInternalError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.internal = true
}

// SetInterrupted marks that a signal stopped the command.
func (m *Manager) SetInterrupted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interrupted = true
}

// ExitCode returns the exit code and a human-readable reason.
//
// Priority order (highest to lowest):
//  1. Interrupted
//  2. Internal error
//  3. Rejected
//  4. Tool failed
//  5. Unavailable
//  6. Success
func (m *Manager) ExitCode() (Code, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interrupted {
		return Interrupted, codeDescriptions[Interrupted]
	}
	if m.internal {
		return Internal, codeDescriptions[Internal]
	}

	worst := map[Code]int{}
	for kind, n := range m.counts {
		worst[ForKind(kind)] += n
	}
	for _, c := range []Code{Rejected, ToolFailed, Unavailable} {
		if n := worst[c]; n > 0 {
			return c, fmt.Sprintf("%s (count: %d)", codeDescriptions[c], n)
		}
	}
	return Success, codeDescriptions[Success]
}

// Counts returns how many outcomes of each kind were recorded.
func (m *Manager) Counts() map[tool.ErrorKind]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[tool.ErrorKind]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// CodeString returns the short name of code.
func CodeString(code Code) string {
	if s, ok := codeStrings[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown_code_%d", code)
}

// CodeDescription returns a sentence describing code.
func CodeDescription(code Code) string {
	if s, ok := codeDescriptions[code]; ok {
		return s
	}
	return fmt.Sprintf("Unknown exit code: %d", code)
}
