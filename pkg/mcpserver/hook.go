package mcpserver

import (
	"context"
	"sync"
	"time"

	"github.com/scanguard/scanguard/pkg/output/dispatcher"
	"github.com/scanguard/scanguard/pkg/output/events"
)

// recentTransitions bounds the breaker history reported by tool_status.
const recentTransitions = 32

var _ dispatcher.Hook = (*Hook)(nil)

// Hook bridges the event dispatcher to the MCP server: breaker transitions
// are kept for tool_status so an agent can see why a tool is refusing
// calls.
type Hook struct {
	log *transitionLog
}

// Hook returns the dispatcher hook feeding this server. Register it before
// the first invocation.
func (s *Server) Hook() *Hook { return &Hook{log: s.recent} }

// OnEvent is called by the dispatcher for each breaker event.
func (h *Hook) OnEvent(_ context.Context, event events.Event) error {
	if e, ok := event.(*events.BreakerEvent); ok {
		h.log.add(transition{
			Tool:     e.Tool,
			From:     e.From,
			To:       e.To,
			Failures: e.Failures,
			At:       e.Timestamp(),
		})
	}
	return nil
}

// EventTypes limits the hook to breaker events.
func (h *Hook) EventTypes() []events.EventType {
	return []events.EventType{events.EventTypeBreaker}
}

type transition struct {
	Tool     string    `json:"tool"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Failures int       `json:"consecutive_failures"`
	At       time.Time `json:"at"`
}

// transitionLog is a fixed-size ring, newest last.
type transitionLog struct {
	mu    sync.Mutex
	items []transition
	next  int
	full  bool
}

func newTransitionLog(size int) *transitionLog {
	return &transitionLog{items: make([]transition, size)}
}

func (l *transitionLog) add(t transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[l.next] = t
	l.next = (l.next + 1) % len(l.items)
	if l.next == 0 {
		l.full = true
	}
}

// snapshot returns the retained transitions, oldest first, optionally for
// one tool only.
func (l *transitionLog) snapshot(toolName string) []transition {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ordered []transition
	if l.full {
		ordered = append(ordered, l.items[l.next:]...)
	}
	ordered = append(ordered, l.items[:l.next]...)

	out := ordered[:0]
	for _, t := range ordered {
		if toolName == "" || t.Tool == toolName {
			out = append(out, t)
		}
	}
	return out
}
