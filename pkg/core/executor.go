// Package core is the execution orchestrator: the single entry point that
// turns an untrusted tool request into a structured result. Each call is
// validated, admitted through the tool's concurrency gate and circuit
// breaker, run by the process runner, and reported back to the breaker.
// No error or panic escapes Execute; every path ends in a tool.Result.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/scanguard/scanguard/pkg/breaker"
	"github.com/scanguard/scanguard/pkg/gate"
	"github.com/scanguard/scanguard/pkg/output/dispatcher"
	"github.com/scanguard/scanguard/pkg/output/events"
	"github.com/scanguard/scanguard/pkg/runner"
	"github.com/scanguard/scanguard/pkg/sanitize"
	"github.com/scanguard/scanguard/pkg/target"
	"github.com/scanguard/scanguard/pkg/tool"
)

// Sentinel errors. Callers should use errors.Is().
var (
	// ErrUnknownTool is returned for a tool name with no descriptor.
	ErrUnknownTool = errors.New("core: unknown tool")

	// ErrTimeoutOutOfBounds rejects a non-positive or over-limit override.
	ErrTimeoutOutOfBounds = errors.New("core: timeout override out of bounds")

	// ErrArgumentTarget rejects an address smuggled in through the
	// argument string that the target validator would not accept.
	ErrArgumentTarget = errors.New("core: argument names an unauthorized address")

	// ErrNoSlot is returned when the caller gave up, or the executor shut
	// down, before a concurrency slot became free.
	ErrNoSlot = errors.New("core: no execution slot")

	// ErrInternal wraps a recovered panic.
	ErrInternal = errors.New("core: internal error")
)

// slot is the process-wide state of one tool identity. It is created once
// at construction and shared by every invocation of that tool.
type slot struct {
	desc    tool.Descriptor
	breaker *breaker.Breaker
	gate    *gate.Gate
}

// Executor runs guarded tool invocations. It is safe for concurrent use;
// invocations of different tools share no mutable state.
type Executor struct {
	catalog    *tool.Catalog
	validator  *target.Validator
	runner     runner.Process
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	clock      func() time.Time
	newID      func() string

	slots map[string]*slot
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets a custom structured logger for the executor.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRunner replaces the process runner.
func WithRunner(p runner.Process) ExecutorOption {
	return func(e *Executor) {
		if p != nil {
			e.runner = p
		}
	}
}

// WithDispatcher routes invocation and breaker events to d.
func WithDispatcher(d *dispatcher.Dispatcher) ExecutorOption {
	return func(e *Executor) { e.dispatcher = d }
}

// WithClock sets the clock used by every circuit breaker.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.clock = now
		}
	}
}

// WithIDGenerator sets how correlation ids are minted for requests that
// carry none.
func WithIDGenerator(gen func() string) ExecutorOption {
	return func(e *Executor) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// NewExecutor builds the per-tool registry from catalog. Breakers and
// gates live as long as the Executor.
func NewExecutor(catalog *tool.Catalog, validator *target.Validator, opts ...ExecutorOption) *Executor {
	e := &Executor{
		catalog:   catalog,
		validator: validator,
		logger:    slog.Default(),
		clock:     time.Now,
		newID:     uuid.NewString,
		slots:     make(map[string]*slot, catalog.Len()),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = runner.New(runner.WithLogger(e.logger))
	}

	for _, d := range catalog.All() {
		var gateOpts []gate.Option
		if d.LaunchesPerMinute > 0 {
			gateOpts = append(gateOpts, gate.WithLaunchesPerMinute(d.LaunchesPerMinute))
		}
		e.slots[d.Name] = &slot{
			desc: d,
			breaker: breaker.New(d.Name, breaker.Config{
				FailureThreshold: d.FailureThreshold,
				RecoveryTimeout:  d.RecoveryTimeout,
				Clock:            e.clock,
				OnStateChange:    e.onBreakerChange,
			}),
			gate: gate.New(d.Concurrency, gateOpts...),
		}
	}
	return e
}

// Catalog returns the registered descriptors.
func (e *Executor) Catalog() *tool.Catalog { return e.catalog }

// Validator returns the target validator.
func (e *Executor) Validator() *target.Validator { return e.validator }

// invocation carries what the event needs beyond the result.
type invocation struct {
	target string
	args   []string
	trial  bool
}

// Execute runs one request against toolName. It always returns a result
// stamped with the total wall-clock duration and a correlation id.
func (e *Executor) Execute(ctx context.Context, toolName string, req tool.Request) tool.Result {
	started := time.Now()
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = e.newID()
	}

	var inv invocation
	res := e.guard(toolName, correlationID, func() tool.Result {
		return e.execute(ctx, toolName, req, &inv)
	})

	res.ExecutionDuration = time.Since(started)
	res.CorrelationID = correlationID

	state := ""
	if s, ok := e.slots[toolName]; ok {
		state = s.breaker.State().String()
	}
	e.emit(ctx, func() events.Event {
		ev := events.NewInvocationEvent(toolName, inv.target, inv.args, res, started, state)
		ev.Trial = inv.trial
		return ev
	})
	return res
}

// guard converts a panic anywhere in fn into an EXECUTION_ERROR result.
func (e *Executor) guard(toolName, correlationID string, fn func() tool.Result) (res tool.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic in execution path",
				slog.String("tool", toolName),
				slog.String("correlation_id", correlationID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = tool.Failure(tool.KindExecution, fmt.Errorf("%w: %v", ErrInternal, r))
		}
	}()
	return fn()
}

func (e *Executor) execute(ctx context.Context, toolName string, req tool.Request, inv *invocation) tool.Result {
	s, ok := e.slots[toolName]
	if !ok {
		return tool.Failure(tool.KindValidation, fmt.Errorf("%w: %q", ErrUnknownTool, toolName))
	}
	d := s.desc

	// Validation never touches the gate or the breaker.
	t, err := e.validator.ValidateFor(req.Target, d.AllowRanges)
	if err != nil {
		return tool.Failure(tool.KindValidation, err)
	}
	inv.target = t.String()

	tokens, err := sanitize.Sanitize(req.ArgumentString, d.AllowedFlags, d.MaxArgLength)
	if err != nil {
		if errors.Is(err, sanitize.ErrTooLong) {
			return tool.Failure(tool.KindResourceExhausted, err)
		}
		return tool.Failure(tool.KindValidation, err)
	}
	if err := sanitize.CheckRequired(tokens, d.RequiredFlags); err != nil {
		return tool.Failure(tool.KindValidation, err)
	}
	if err := e.checkArgumentAddresses(tokens, d); err != nil {
		return tool.Failure(tool.KindValidation, err)
	}
	inv.args = sanitize.Redact(tokens, d.SecretFlags)

	timeout, err := effectiveTimeout(d, req.TimeoutOverride)
	if err != nil {
		return tool.Failure(tool.KindValidation, err)
	}

	permit, err := s.gate.Acquire(ctx)
	if err != nil {
		// The tool never ran, so the breaker hears nothing.
		return tool.Failure(tool.KindResourceExhausted, fmt.Errorf("%w for %s: %v", ErrNoSlot, d.Name, err))
	}
	defer permit.Release()

	ticket, err := s.breaker.Allow()
	if err != nil {
		return tool.Failure(tool.KindCircuitOpen, err)
	}
	inv.trial = ticket.Trial()

	res := e.spawn(ctx, runner.Spec{
		Binary:           d.Binary,
		Args:             d.Argv(tokens, t.String()),
		Timeout:          timeout,
		MaxOutputBytes:   d.MaxOutputBytes,
		SuccessExitCodes: d.SuccessExitCodes,
		EnvPassthrough:   d.EnvPassthrough,
	})
	s.breaker.Record(ticket, breaker.OutcomeOf(res.ErrorKind))
	return res
}

// spawn runs the process. A panicking runner is an unexpected spawn fault
// and is reported to the breaker like any other execution error.
func (e *Executor) spawn(ctx context.Context, spec runner.Spec) (res tool.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic in process runner",
				slog.String("binary", spec.Binary),
				slog.Any("panic", r),
			)
			res = tool.Failure(tool.KindExecution, fmt.Errorf("%w: runner: %v", ErrInternal, r))
		}
	}()
	return e.runner.Run(ctx, spec)
}

func effectiveTimeout(d tool.Descriptor, override time.Duration) (time.Duration, error) {
	if override == 0 {
		return d.DefaultTimeout, nil
	}
	if override < 0 || override > d.MaxTimeout {
		return 0, fmt.Errorf("%w: %s not in (0, %s]", ErrTimeoutOutOfBounds, override, d.MaxTimeout)
	}
	return override, nil
}

func (e *Executor) onBreakerChange(tr breaker.Transition) {
	e.emit(context.Background(), func() events.Event {
		return events.NewBreakerEvent(tr.Tool, tr.From.String(), tr.To.String(), tr.Failures, tr.At, "")
	})
}

func (e *Executor) emit(ctx context.Context, build func() events.Event) {
	if e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Dispatch(ctx, build()); err != nil {
		e.logger.Warn("event dispatch failed", slog.String("error", err.Error()))
	}
}

// Close stops admitting new invocations. Running invocations finish
// normally; callers blocked on a slot get RESOURCE_EXHAUSTED.
func (e *Executor) Close() {
	for _, s := range e.slots {
		s.gate.Close()
	}
}
