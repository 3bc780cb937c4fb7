package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/duration"
	"github.com/scanguard/scanguard/pkg/output/dispatcher"
	"github.com/scanguard/scanguard/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*PrometheusHook)(nil)

// GateStats reports the live slot usage of every tool. The hook samples it
// on each scrape.
type GateStats func() map[string]GateUsage

// GateUsage is one tool's gate occupancy.
type GateUsage struct {
	InFlight int
	Capacity int
}

// PrometheusHook turns invocation and breaker events into Prometheus
// metrics. Labels never include targets or arguments.
type PrometheusHook struct {
	registry *prometheus.Registry
	opts     PrometheusOptions
	logger   *slog.Logger

	invocationsTotal   *prometheus.CounterVec
	truncatedTotal     *prometheus.CounterVec
	durationSeconds    *prometheus.HistogramVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	closed   bool
}

// PrometheusOptions configures the Prometheus hook behavior.
type PrometheusOptions struct {
	// Registry to register metrics in. A private registry is created when nil.
	Registry *prometheus.Registry

	// Path for the standalone metrics endpoint (default: "/metrics").
	Path string

	// Gates, when set, exports scanguard_gate_in_flight and
	// scanguard_gate_capacity.
	Gates GateStats

	// Logger receives server errors.
	Logger *slog.Logger
}

// NewPrometheusHook creates the hook and registers its collectors.
func NewPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	if opts.Path == "" {
		opts.Path = defaults.MetricsPath
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	h := &PrometheusHook{
		registry: registry,
		opts:     opts,
		logger:   orDefault(opts.Logger),
	}
	if err := h.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return h, nil
}

func (h *PrometheusHook) initMetrics() error {
	h.invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanguard_invocations_total",
			Help: "Tool invocations by outcome",
		},
		[]string{"tool", "outcome"},
	)

	h.truncatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanguard_output_truncated_total",
			Help: "Invocations whose captured output hit the byte ceiling",
		},
		[]string{"tool"},
	)

	h.durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scanguard_invocation_duration_seconds",
			Help:    "Wall-clock duration of invocations that reached the process runner",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"tool", "outcome"},
	)

	h.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scanguard_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"tool"},
	)

	h.breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanguard_breaker_transitions_total",
			Help: "Circuit breaker transitions by destination state",
		},
		[]string{"tool", "to"},
	)

	collectors := []prometheus.Collector{
		h.invocationsTotal,
		h.truncatedTotal,
		h.durationSeconds,
		h.breakerState,
		h.breakerTransitions,
	}
	if h.opts.Gates != nil {
		collectors = append(collectors, &gateCollector{stats: h.opts.Gates})
	}

	for _, c := range collectors {
		if err := h.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// OnEvent updates metrics from the event.
func (h *PrometheusHook) OnEvent(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.InvocationEvent:
		h.invocationsTotal.WithLabelValues(e.Tool, string(e.Outcome)).Inc()
		if e.Truncated {
			h.truncatedTotal.WithLabelValues(e.Tool).Inc()
		}
		if e.Ran() {
			h.durationSeconds.WithLabelValues(e.Tool, string(e.Outcome)).Observe(e.Duration.Seconds())
		}
		h.breakerState.WithLabelValues(e.Tool).Set(stateValue(e.BreakerState))
	case *events.BreakerEvent:
		h.breakerTransitions.WithLabelValues(e.Tool, e.To).Inc()
		h.breakerState.WithLabelValues(e.Tool).Set(stateValue(e.To))
	}
	return nil
}

// Track seeds the per-tool series so dashboards see every tool before its
// first invocation.
func (h *PrometheusHook) Track(toolNames ...string) {
	for _, name := range toolNames {
		h.breakerState.WithLabelValues(name).Set(0)
		for _, o := range events.Outcomes() {
			h.invocationsTotal.WithLabelValues(name, string(o))
		}
	}
}

func stateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF_OPEN":
		return 2
	default:
		return 0
	}
}

// EventTypes returns the event types this hook handles.
func (h *PrometheusHook) EventTypes() []events.EventType {
	return []events.EventType{events.EventTypeInvocation, events.EventTypeBreaker}
}

// Registry returns the registry the metrics live in.
func (h *PrometheusHook) Registry() *prometheus.Registry { return h.registry }

// Handler serves the registry in the Prometheus exposition format.
func (h *PrometheusHook) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve starts a standalone metrics server on addr. It is used when the MCP
// server runs over stdio and has no HTTP listener of its own.
func (h *PrometheusHook) Serve(addr string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("prometheus: hook closed")
	}
	if h.server != nil {
		return errors.New("prometheus: already serving")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("prometheus: listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(h.opts.Path, h.Handler())
	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: duration.HTTPReadHeader,
		ReadTimeout:       duration.MetricsRead,
		WriteTimeout:      duration.MetricsWrite,
	}
	h.listener = ln

	srv := h.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// MetricsAddr returns the URL of the standalone endpoint, or "" when not
// serving.
func (h *PrometheusHook) MetricsAddr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return "http://" + h.listener.Addr().String() + h.opts.Path
}

// Close shuts down the standalone metrics server, if any.
func (h *PrometheusHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), duration.ShutdownGrace)
		defer cancel()
		return h.server.Shutdown(ctx)
	}
	return nil
}

var (
	gateInFlightDesc = prometheus.NewDesc(
		"scanguard_gate_in_flight",
		"Permits currently held per tool",
		[]string{"tool"}, nil,
	)
	gateCapacityDesc = prometheus.NewDesc(
		"scanguard_gate_capacity",
		"Fixed concurrency capacity per tool",
		[]string{"tool"}, nil,
	)
)

// gateCollector samples gate occupancy at scrape time.
type gateCollector struct {
	stats GateStats
}

func (c *gateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- gateInFlightDesc
	ch <- gateCapacityDesc
}

func (c *gateCollector) Collect(ch chan<- prometheus.Metric) {
	for name, u := range c.stats() {
		ch <- prometheus.MustNewConstMetric(gateInFlightDesc, prometheus.GaugeValue, float64(u.InFlight), name)
		ch <- prometheus.MustNewConstMetric(gateCapacityDesc, prometheus.GaugeValue, float64(u.Capacity), name)
	}
}
