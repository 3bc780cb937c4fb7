package config

import "errors"

// Sentinel errors for configuration failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrInvalidConfig indicates the configuration is syntactically
	// or semantically invalid (bad YAML, out-of-range limits, bad tool
	// descriptors, etc.).
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingRequired indicates a required configuration field
	// was not provided.
	ErrMissingRequired = errors.New("config: missing required field")

	// ErrUnknownTool indicates the configuration names a tool that is
	// neither built in nor declared in the tools section.
	ErrUnknownTool = errors.New("config: unknown tool")

	// ErrNotFound indicates the configuration file does not exist.
	ErrNotFound = errors.New("config: file not found")
)
