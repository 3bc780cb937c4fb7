// Package writers provides dispatcher.Writer implementations for the event
// stream.
package writers

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/scanguard/scanguard/pkg/output/dispatcher"
	"github.com/scanguard/scanguard/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*JSONLWriter)(nil)

// JSONLWriter writes events as newline-delimited JSON (JSONL), one complete
// object per line, so the stream can be tailed and filtered with jq.
// It is the audit log of every invocation and breaker transition; tool
// output itself is never written.
type JSONLWriter struct {
	w       io.Writer
	mu      sync.Mutex
	opts    JSONLOptions
	encoder *json.Encoder
}

// JSONLOptions configures the JSONL writer behavior.
type JSONLOptions struct {
	// OmitArgs drops the redacted argument vector from invocation events.
	OmitArgs bool

	// OnlyBreaker filters output to breaker transitions.
	OnlyBreaker bool
}

// NewJSONLWriter creates a new JSONL writer that writes to w.
// The writer is safe for concurrent use.
func NewJSONLWriter(w io.Writer, opts JSONLOptions) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{w: w, opts: opts, encoder: enc}
}

// Write writes an event as a single JSON line.
func (jw *JSONLWriter) Write(event events.Event) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if inv, ok := event.(*events.InvocationEvent); ok && jw.opts.OmitArgs {
		filtered := *inv
		filtered.Args = nil
		return jw.encoder.Encode(&filtered)
	}
	return jw.encoder.Encode(event)
}

// Flush syncs the underlying writer when it supports Sync.
func (jw *JSONLWriter) Flush() error {
	if s, ok := jw.w.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// Close closes the underlying writer if it implements io.Closer.
func (jw *JSONLWriter) Close() error {
	if closer, ok := jw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SupportsEvent reports whether eventType passes the writer's filter.
func (jw *JSONLWriter) SupportsEvent(eventType events.EventType) bool {
	if jw.opts.OnlyBreaker {
		return eventType == events.EventTypeBreaker
	}
	return true
}
