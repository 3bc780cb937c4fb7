package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/scanguard/scanguard/pkg/output/dispatcher"
	"github.com/scanguard/scanguard/pkg/output/events"
)

// orDefault returns l if non-nil, otherwise slog.Default().
func orDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// Compile-time interface check.
var _ dispatcher.Hook = (*LogHook)(nil)

// LogHook writes one structured line per invocation and per breaker
// transition.
type LogHook struct {
	logger *slog.Logger
}

// NewLogHook creates a hook logging to l (slog.Default() when nil).
func NewLogHook(l *slog.Logger) *LogHook {
	return &LogHook{logger: orDefault(l)}
}

// OnEvent logs the event.
func (h *LogHook) OnEvent(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.InvocationEvent:
		h.logInvocation(ctx, e)
	case *events.BreakerEvent:
		h.logBreaker(ctx, e)
	}
	return nil
}

func (h *LogHook) logInvocation(ctx context.Context, e *events.InvocationEvent) {
	level := slog.LevelInfo
	if e.ErrorKind.CountsAsFailure() {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("tool", e.Tool),
		slog.String("correlation_id", e.CorrelationID),
		slog.String("outcome", string(e.Outcome)),
		slog.Duration("duration", e.Duration.Round(time.Millisecond)),
		slog.Int("exit_code", e.ExitCode),
		slog.String("breaker_state", e.BreakerState),
	}
	if e.Target != "" {
		attrs = append(attrs, slog.String("target", e.Target))
	}
	if len(e.Args) > 0 {
		attrs = append(attrs, slog.Any("args", e.Args))
	}
	if e.Truncated {
		attrs = append(attrs, slog.Bool("truncated", true))
	}
	if e.Trial {
		attrs = append(attrs, slog.Bool("trial", true))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	h.logger.LogAttrs(ctx, level, "tool invocation", attrs...)
}

func (h *LogHook) logBreaker(ctx context.Context, e *events.BreakerEvent) {
	level := slog.LevelInfo
	if e.To == "OPEN" {
		level = slog.LevelWarn
	}
	h.logger.LogAttrs(ctx, level, "circuit breaker transition",
		slog.String("tool", e.Tool),
		slog.String("from", e.From),
		slog.String("to", e.To),
		slog.Int("consecutive_failures", e.Failures),
	)
}

// EventTypes returns nil to receive every event.
func (h *LogHook) EventTypes() []events.EventType { return nil }
