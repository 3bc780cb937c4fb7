package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/duration"
	"github.com/scanguard/scanguard/pkg/output/dispatcher"
	"github.com/scanguard/scanguard/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*OTelHook)(nil)

const tracerName = "scanguard/core"

// OTelHook exports one span per invocation to an OpenTelemetry collector.
// Spans are recorded after the fact with the invocation's real start and
// end times. Breaker transitions become zero-length spans.
type OTelHook struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	mu     sync.Mutex
	closed bool
}

// OTelOptions configures the OpenTelemetry hook behavior.
type OTelOptions struct {
	// Endpoint is the OTLP endpoint (default: "localhost:4317").
	Endpoint string

	// ServiceName is the service name for traces (default: "scanguard").
	ServiceName string

	// Insecure uses insecure connection (no TLS).
	Insecure bool

	// Headers contains additional headers for the OTLP exporter.
	Headers map[string]string

	// ShutdownTimeout is the timeout for graceful shutdown (default: 5s).
	ShutdownTimeout time.Duration

	// ConnectionTimeout is the timeout for establishing connection (default: 10s).
	ConnectionTimeout time.Duration
}

func (o *OTelOptions) applyDefaults() {
	if o.ServiceName == "" {
		o.ServiceName = defaults.ToolName
	}
	if o.Endpoint == "" {
		o.Endpoint = defaults.OTLPEndpoint
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = duration.ExporterShutdown
	}
	if o.ConnectionTimeout == 0 {
		o.ConnectionTimeout = duration.ExporterConnect
	}
}

// NewOTelHook creates a hook exporting over OTLP/gRPC. The exporter
// connects lazily; an unreachable collector never blocks invocations.
func NewOTelHook(opts OTelOptions) (*OTelHook, error) {
	opts.applyDefaults()

	grpcOpts := []grpc.DialOption{}
	if opts.Insecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithDialOption(grpcOpts...),
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectionTimeout)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("otel: create exporter: %w", err)
	}

	return NewOTelHookWithExporter(opts, exporter), nil
}

// NewOTelHookWithExporter builds the hook around any span exporter.
func NewOTelHookWithExporter(opts OTelOptions, exporter sdktrace.SpanExporter) *OTelHook {
	opts.applyDefaults()

	// Avoid merging with resource.Default to prevent schema conflicts.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "executor"),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return &OTelHook{
		opts:           opts,
		tracerProvider: tp,
		tracer:         tp.Tracer(tracerName),
	}
}

// OnEvent records the event as a span.
func (h *OTelHook) OnEvent(ctx context.Context, event events.Event) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil
	}

	switch e := event.(type) {
	case *events.InvocationEvent:
		h.recordInvocation(ctx, e)
	case *events.BreakerEvent:
		h.recordTransition(ctx, e)
	}
	return nil
}

func (h *OTelHook) recordInvocation(ctx context.Context, e *events.InvocationEvent) {
	_, span := h.tracer.Start(ctx, "scanguard.execute "+e.Tool,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(e.Started),
		trace.WithAttributes(
			attribute.String("tool", e.Tool),
			attribute.String("correlation_id", e.CorrelationID),
			attribute.String("outcome", string(e.Outcome)),
			attribute.Int("exit_code", e.ExitCode),
			attribute.Bool("timed_out", e.TimedOut),
			attribute.Bool("truncated", e.Truncated),
			attribute.String("breaker.state", e.BreakerState),
			attribute.Bool("breaker.trial", e.Trial),
			attribute.Bool("process.spawned", e.Ran()),
		),
	)

	if e.Outcome == events.OutcomeSuccess {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, e.Error)
	}
	span.End(trace.WithTimestamp(e.Timestamp()))
}

func (h *OTelHook) recordTransition(ctx context.Context, e *events.BreakerEvent) {
	_, span := h.tracer.Start(ctx, "scanguard.breaker "+e.Tool,
		trace.WithTimestamp(e.Timestamp()),
		trace.WithAttributes(
			attribute.String("tool", e.Tool),
			attribute.String("breaker.from", e.From),
			attribute.String("breaker.to", e.To),
			attribute.Int("breaker.consecutive_failures", e.Failures),
		),
	)
	span.AddEvent("state_change", trace.WithTimestamp(e.Timestamp()))
	if e.To == "OPEN" {
		span.SetStatus(codes.Error, "circuit opened")
	}
	span.End(trace.WithTimestamp(e.Timestamp()))
}

// EventTypes returns the event types this hook handles.
func (h *OTelHook) EventTypes() []events.EventType {
	return []events.EventType{events.EventTypeInvocation, events.EventTypeBreaker}
}

// Flush exports every finished span.
func (h *OTelHook) Flush(ctx context.Context) error {
	return h.tracerProvider.ForceFlush(ctx)
}

// Close shuts down the tracer provider and flushes any pending telemetry.
func (h *OTelHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
	defer cancel()
	if err := h.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("otel: shutdown tracer provider: %w", err)
	}
	return nil
}

// Endpoint returns the OTLP endpoint being used.
func (h *OTelHook) Endpoint() string { return h.opts.Endpoint }

// ServiceName returns the service name being used.
func (h *OTelHook) ServiceName() string { return h.opts.ServiceName }
