package events

import "time"

// BreakerEvent is emitted when a tool's circuit changes state.
type BreakerEvent struct {
	BaseEvent
	Tool     string `json:"tool"`
	From     string `json:"from"`
	To       string `json:"to"`
	Failures int    `json:"consecutive_failures"`
}

// NewBreakerEvent builds a transition event. correlationID is the
// invocation whose outcome caused the transition, if known.
func NewBreakerEvent(toolName, from, to string, failures int, at time.Time, correlationID string) *BreakerEvent {
	return &BreakerEvent{
		BaseEvent: BaseEvent{Type: EventTypeBreaker, Time: at, CorrelationID: correlationID},
		Tool:      toolName,
		From:      from,
		To:        to,
		Failures:  failures,
	}
}
