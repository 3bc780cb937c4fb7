package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/output/events"
	"github.com/scanguard/scanguard/pkg/tool"
)

// =============================================================================
// OTelHook Tests
// =============================================================================

func newTestOTelHook(t *testing.T) (*OTelHook, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	h := NewOTelHookWithExporter(OTelOptions{}, exp)
	t.Cleanup(func() { _ = h.Close() })
	return h, exp
}

func spanAttrs(s tracetest.SpanStub) map[attribute.Key]attribute.Value {
	m := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestOTelHook_Defaults(t *testing.T) {
	h, _ := newTestOTelHook(t)
	assert.Equal(t, defaults.ToolName, h.ServiceName())
	assert.Equal(t, defaults.OTLPEndpoint, h.Endpoint())
}

func TestOTelHook_InvocationSpan(t *testing.T) {
	h, exp := newTestOTelHook(t)
	ctx := context.Background()

	e := newInvocation(tool.KindNone)
	require.NoError(t, h.OnEvent(ctx, e))
	require.NoError(t, h.Flush(ctx))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "scanguard.execute nmap", s.Name)
	assert.True(t, e.Started.Equal(s.StartTime))
	assert.True(t, e.Timestamp().Equal(s.EndTime))
	assert.Equal(t, codes.Ok, s.Status.Code)

	attrs := spanAttrs(s)
	assert.Equal(t, "corr-1", attrs["correlation_id"].AsString())
	assert.Equal(t, "success", attrs["outcome"].AsString())
	assert.Equal(t, "CLOSED", attrs["breaker.state"].AsString())
	assert.True(t, attrs["process.spawned"].AsBool())
	_, hasTarget := attrs["target"]
	assert.False(t, hasTarget)
}

func TestOTelHook_FailedInvocationSpan(t *testing.T) {
	h, exp := newTestOTelHook(t)
	ctx := context.Background()

	require.NoError(t, h.OnEvent(ctx, newInvocation(tool.KindCircuitOpen)))
	require.NoError(t, h.Flush(ctx))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "boom", spans[0].Status.Description)
	assert.False(t, spanAttrs(spans[0])["process.spawned"].AsBool())
}

func TestOTelHook_BreakerSpan(t *testing.T) {
	h, exp := newTestOTelHook(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, h.OnEvent(ctx, events.NewBreakerEvent("hydra_ssh", "CLOSED", "OPEN", 3, at, "")))
	require.NoError(t, h.Flush(ctx))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "scanguard.breaker hydra_ssh", spans[0].Name)
	assert.True(t, at.Equal(spans[0].StartTime))
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "OPEN", spanAttrs(spans[0])["breaker.to"].AsString())
	require.Len(t, spans[0].Events, 1)
}

func TestOTelHook_IgnoresEventsAfterClose(t *testing.T) {
	h, exp := newTestOTelHook(t)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	require.NoError(t, h.OnEvent(context.Background(), newInvocation(tool.KindNone)))
	assert.Empty(t, exp.GetSpans())
}
