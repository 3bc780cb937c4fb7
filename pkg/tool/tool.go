// Package tool defines the request/result envelope shared by every layer of
// the guarded execution path, and the descriptor table that identifies each
// external scanning tool.
package tool

import (
	"time"
)

// ErrorKind classifies why an invocation did not succeed. The zero value
// means the tool ran and reported success.
type ErrorKind string

const (
	// KindNone marks a successful invocation.
	KindNone ErrorKind = ""
	// KindValidation covers bad targets and bad arguments. Never counted
	// against the breaker.
	KindValidation ErrorKind = "VALIDATION_ERROR"
	// KindNotFound means the binary could not be resolved.
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindExecution means the process ran and failed, or could not start.
	KindExecution ErrorKind = "EXECUTION_ERROR"
	// KindResourceExhausted means an input ceiling was hit before execution.
	KindResourceExhausted ErrorKind = "RESOURCE_EXHAUSTED"
	// KindCircuitOpen means the breaker rejected the call.
	KindCircuitOpen ErrorKind = "CIRCUIT_OPEN"
	// KindTimeout means the process was killed at its deadline.
	KindTimeout ErrorKind = "TIMEOUT"
)

// CountsAsFailure reports whether an outcome of this kind is a tool-health
// signal for the circuit breaker.
func (k ErrorKind) CountsAsFailure() bool {
	switch k {
	case KindNotFound, KindExecution, KindTimeout:
		return true
	default:
		return false
	}
}

// Ran reports whether a process was (or was attempted to be) spawned for
// an outcome of this kind.
func (k ErrorKind) Ran() bool {
	switch k {
	case KindValidation, KindResourceExhausted, KindCircuitOpen:
		return false
	default:
		return true
	}
}

// Request is one invocation as delivered by the protocol layer.
// Target and ArgumentString are untrusted until validated.
type Request struct {
	Target          string        `json:"target"`
	ArgumentString  string        `json:"argument_string,omitempty"`
	TimeoutOverride time.Duration `json:"timeout_override,omitempty"`
	CorrelationID   string        `json:"correlation_id,omitempty"`
}

// Result is the structured outcome of one invocation. The runner creates
// it; the orchestrator stamps timing and correlation before returning it.
type Result struct {
	Stdout            string        `json:"standard_output"`
	Stderr            string        `json:"standard_error"`
	ExitCode          int           `json:"exit_code"`
	TruncatedStdout   bool          `json:"truncated_stdout"`
	TruncatedStderr   bool          `json:"truncated_stderr"`
	TimedOut          bool          `json:"timed_out"`
	Error             string        `json:"error,omitempty"`
	ErrorKind         ErrorKind     `json:"error_kind,omitempty"`
	ExecutionDuration time.Duration `json:"execution_duration"`
	CorrelationID     string        `json:"correlation_id"`
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool { return r.ErrorKind == KindNone }

// Truncated reports whether either output stream was cut at its ceiling.
func (r Result) Truncated() bool { return r.TruncatedStdout || r.TruncatedStderr }

// Failure builds a result for an invocation that never reached the process.
func Failure(kind ErrorKind, err error) Result {
	r := Result{ErrorKind: kind, ExitCode: -1}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
