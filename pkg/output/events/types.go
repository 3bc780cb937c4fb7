// Package events defines the structured events emitted by the execution
// core. Every event is designed for JSON serialization and carries the
// correlation id of the invocation that produced it.
package events

import (
	"strings"
	"time"

	"github.com/scanguard/scanguard/pkg/tool"
)

// EventType represents the type of output event.
type EventType string

const (
	// EventTypeInvocation is emitted once per Execute call.
	EventTypeInvocation EventType = "invocation"
	// EventTypeBreaker is emitted on every circuit breaker transition.
	EventTypeBreaker EventType = "breaker"
)

// Outcome is the lower-case classification of an invocation, suitable
// for metric labels.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeValidationError   Outcome = "validation_error"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeExecutionError    Outcome = "execution_error"
	OutcomeResourceExhausted Outcome = "resource_exhausted"
	OutcomeCircuitOpen       Outcome = "circuit_open"
	OutcomeTimeout           Outcome = "timeout"
)

// OutcomeOf maps a result kind to its outcome label.
func OutcomeOf(kind tool.ErrorKind) Outcome {
	if kind == tool.KindNone {
		return OutcomeSuccess
	}
	return Outcome(strings.ToLower(string(kind)))
}

// Outcomes lists every outcome label.
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeSuccess,
		OutcomeValidationError,
		OutcomeNotFound,
		OutcomeExecutionError,
		OutcomeResourceExhausted,
		OutcomeCircuitOpen,
		OutcomeTimeout,
	}
}

// Event is the base interface for all events.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	Correlation() string
}

// BaseEvent contains common fields for all events.
// It is designed to be embedded in specific event types.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Time          time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType returns the type of this event.
func (e BaseEvent) EventType() EventType { return e.Type }

// Timestamp returns when this event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// Correlation returns the correlation id of the originating invocation.
func (e BaseEvent) Correlation() string { return e.CorrelationID }
