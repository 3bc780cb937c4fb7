package runner

import "errors"

// Sentinel errors for runner failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrNotFound indicates the binary is not present in any allowed
	// directory. No process was created.
	ErrNotFound = errors.New("runner: binary not found")

	// ErrStart indicates the binary was found but the process could not
	// be created.
	ErrStart = errors.New("runner: process start failed")

	// ErrTimeout indicates the process was terminated at its deadline.
	ErrTimeout = errors.New("runner: timed out")

	// ErrCancelled indicates the caller cancelled while the process ran.
	ErrCancelled = errors.New("runner: cancelled")
)
