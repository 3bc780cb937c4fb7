// Package dispatcher routes events from the execution core to registered
// writers and hooks. Writers persist the event stream (JSON lines audit
// log); hooks feed real-time integrations (logs, metrics, traces).
//
// The dispatcher decouples event generation from event consumption: the
// orchestrator never knows which observability collaborators are wired.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/scanguard/scanguard/pkg/output/events"
)

// Writer is the interface for event stream writers.
type Writer interface {
	// Write writes an event to the output.
	Write(event events.Event) error

	// Flush ensures all buffered events are written.
	Flush() error

	// Close closes the writer and releases any resources.
	Close() error

	// SupportsEvent returns true if the writer handles this event type.
	SupportsEvent(eventType events.EventType) bool
}

// Hook is the interface for event hooks.
type Hook interface {
	// OnEvent is called for each matching event.
	OnEvent(ctx context.Context, event events.Event) error

	// EventTypes returns the event types this hook handles.
	// Return nil or empty slice to receive all events.
	EventTypes() []events.EventType
}

// Dispatcher routes events to writers and hooks.
// It is safe for concurrent use.
type Dispatcher struct {
	mu      sync.RWMutex
	writers []Writer
	hooks   []Hook

	async  bool
	logger *slog.Logger

	hookWg sync.WaitGroup
	closed atomic.Bool
}

// Config configures the dispatcher behavior.
type Config struct {
	// Async enables asynchronous hook processing. Close waits for every
	// hook goroutine started by Dispatch.
	Async bool

	// Logger receives writer and hook failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a new event dispatcher with the given configuration.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		async:  cfg.Async,
		logger: logger,
	}
}

// RegisterWriter adds a writer to the dispatcher.
func (d *Dispatcher) RegisterWriter(w Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writers = append(d.writers, w)
}

// RegisterHook adds a hook to the dispatcher.
func (d *Dispatcher) RegisterHook(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Dispatch sends an event to all registered writers and hooks.
// Individual failures are logged and never stop delivery to the others.
// Events dispatched after Close are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, event events.Event) error {
	if d.closed.Load() {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	// Re-check under the lock: Close holds the write lock while waiting.
	if d.closed.Load() {
		return nil
	}

	for _, w := range d.writers {
		if !w.SupportsEvent(event.EventType()) {
			continue
		}
		if err := w.Write(event); err != nil {
			d.logger.Warn("event writer failed",
				slog.String("event", string(event.EventType())),
				slog.String("error", err.Error()))
		}
	}

	for _, h := range d.hooks {
		if !hookSupportsEvent(h, event.EventType()) {
			continue
		}
		if d.async {
			d.hookWg.Add(1)
			go func(hook Hook) {
				defer d.hookWg.Done()
				d.runHook(context.WithoutCancel(ctx), hook, event)
			}(h)
			continue
		}
		d.runHook(ctx, h, event)
	}

	return nil
}

func (d *Dispatcher) runHook(ctx context.Context, h Hook, event events.Event) {
	if err := h.OnEvent(ctx, event); err != nil {
		d.logger.Warn("event hook failed",
			slog.String("event", string(event.EventType())),
			slog.String("error", err.Error()))
	}
}

// hookSupportsEvent checks if a hook handles the given event type.
func hookSupportsEvent(h Hook, eventType events.EventType) bool {
	types := h.EventTypes()
	if len(types) == 0 {
		return true
	}
	for _, et := range types {
		if et == eventType {
			return true
		}
	}
	return false
}

// Flush flushes all registered writers.
func (d *Dispatcher) Flush() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, w := range d.writers {
		_ = w.Flush()
	}
	return nil
}

// Close waits for outstanding async hooks, then flushes and closes all
// writers. Hooks are not closed; their owners close them. Close is
// idempotent.
func (d *Dispatcher) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	// No Dispatch holds the read lock here, so hookWg.Add cannot race Wait.
	d.hookWg.Wait()

	for _, w := range d.writers {
		_ = w.Flush()
		_ = w.Close()
	}
	return nil
}
