package core

import (
	"time"

	"github.com/scanguard/scanguard/pkg/breaker"
)

// ToolStatus is a point-in-time view of one tool's breaker and gate.
type ToolStatus struct {
	Tool                string        `json:"tool"`
	State               breaker.State `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastFailure         time.Time     `json:"last_failure,omitempty"`
	RetryAfter          time.Duration `json:"retry_after,omitempty"`
	TrialInFlight       bool          `json:"trial_in_flight"`
	Opens               uint64        `json:"opens"`
	InFlight            int           `json:"in_flight"`
	Waiting             int           `json:"waiting"`
	Capacity            int           `json:"capacity"`
}

// Status returns every tool's status in name order. Each entry is read
// under that tool's own lock; entries are not a global snapshot.
func (e *Executor) Status() []ToolStatus {
	out := make([]ToolStatus, 0, len(e.slots))
	for _, name := range e.catalog.Names() {
		st, _ := e.ToolStatus(name)
		out = append(out, st)
	}
	return out
}

// ToolStatus returns one tool's status.
func (e *Executor) ToolStatus(name string) (ToolStatus, bool) {
	s, ok := e.slots[name]
	if !ok {
		return ToolStatus{}, false
	}
	snap := s.breaker.Snapshot()
	return ToolStatus{
		Tool:                name,
		State:               snap.State,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		LastFailure:         snap.LastFailure,
		RetryAfter:          snap.RetryAfter,
		TrialInFlight:       snap.TrialInFlight,
		Opens:               snap.Opens,
		InFlight:            s.gate.InFlight(),
		Waiting:             s.gate.Waiting(),
		Capacity:            s.gate.Capacity(),
	}, true
}

// Healthy reports whether no tool's circuit is OPEN and still cooling
// down. An OPEN circuit whose recovery timeout has passed admits a trial on
// the next call and counts as healthy.
func (e *Executor) Healthy() bool {
	for _, s := range e.slots {
		snap := s.breaker.Snapshot()
		if snap.State == breaker.StateOpen && snap.RetryAfter > 0 {
			return false
		}
	}
	return true
}
