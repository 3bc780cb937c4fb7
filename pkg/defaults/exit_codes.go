package defaults

// Exit codes for the CLI.
const (
	ExitSuccess       = 0 // Clean exit, tool succeeded
	ExitToolFailed    = 1 // Tool ran and did not succeed, or timed out
	ExitUserError     = 2 // Invalid arguments, configuration or target
	ExitUnavailable   = 3 // Circuit open or no slot; retry later
	ExitInternalError = 4 // Unexpected internal error
	ExitInterrupted   = 5 // Stopped by SIGINT/SIGTERM
)
