// Package breaker implements a per-tool circuit breaker. Once a tool has
// failed FailureThreshold times in a row it is not invoked again until
// RecoveryTimeout has passed, after which exactly one trial call decides
// whether it is healthy.
//
// Usage:
//
//	b := breaker.New("nmap", breaker.Config{FailureThreshold: 5, RecoveryTimeout: time.Minute})
//	ticket, err := b.Allow()
//	if err != nil {
//	    // errors.Is(err, breaker.ErrOpen)
//	    return
//	}
//	res := run()
//	b.Record(ticket, breaker.OutcomeOf(res.ErrorKind))
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/duration"
	"github.com/scanguard/scanguard/pkg/tool"
)

// ErrOpen is wrapped by every rejection.
var ErrOpen = errors.New("breaker: circuit open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Outcome is what a call reports back.
type Outcome int

const (
	// OutcomeSuccess resets the failure count.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure counts toward opening the circuit.
	OutcomeFailure
	// OutcomeNeutral neither counts nor resets. A neutral trial frees the
	// HALF_OPEN slot without deciding.
	OutcomeNeutral
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	}
	return "neutral"
}

// OutcomeOf classifies a result kind. Only tool-health failures count;
// caller mistakes and derived rejections are neutral.
func OutcomeOf(kind tool.ErrorKind) Outcome {
	switch {
	case kind == tool.KindNone:
		return OutcomeSuccess
	case kind.CountsAsFailure():
		return OutcomeFailure
	default:
		return OutcomeNeutral
	}
}

// OpenError is returned while the circuit rejects calls.
type OpenError struct {
	Tool string
	// SinceFailure is the time elapsed since the failure that opened (or
	// re-opened) the circuit.
	SinceFailure time.Duration
	// RetryAfter is the remaining cooldown; zero while a trial is running.
	RetryAfter time.Duration
	// TrialInFlight is set when the rejection is due to a running HALF_OPEN
	// trial rather than the cooldown.
	TrialInFlight bool
}

func (e *OpenError) Error() string {
	since := e.SinceFailure.Round(time.Millisecond)
	if e.TrialInFlight {
		return fmt.Sprintf("circuit open for %s: recovery trial in progress (last failure %s ago)", e.Tool, since)
	}
	return fmt.Sprintf("circuit open for %s: last failure %s ago, retry in %s", e.Tool, since, e.RetryAfter.Round(time.Millisecond))
}

func (e *OpenError) Unwrap() error { return ErrOpen }

// Transition describes one state change.
type Transition struct {
	Tool     string
	From     State
	To       State
	Failures int
	At       time.Time
}

// Config configures a Breaker. Zero values take the package defaults.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(Transition)
}

// Ticket is issued by Allow and handed back to Record.
type Ticket struct {
	gen   uint64
	trial bool
}

// Trial reports whether the ticket is the single HALF_OPEN trial.
func (t Ticket) Trial() bool { return t.trial }

// Snapshot is a consistent copy of the breaker record.
type Snapshot struct {
	Tool                string        `json:"tool"`
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastFailure         time.Time     `json:"last_failure,omitempty"`
	RetryAfter          time.Duration `json:"retry_after,omitempty"`
	TrialInFlight       bool          `json:"trial_in_flight"`
	Opens               uint64        `json:"opens"`
}

// Breaker is the circuit breaker record of one tool. All mutation happens
// under mu; it is safe for concurrent use.
type Breaker struct {
	tool      string
	threshold int
	recovery  time.Duration
	now       func() time.Time
	onChange  func(Transition)

	mu            sync.Mutex
	state         State
	gen           uint64
	failures      int
	lastFailure   time.Time
	trialInFlight bool
	opens         uint64
}

// New creates a CLOSED breaker for toolName.
func New(toolName string, cfg Config) *Breaker {
	b := &Breaker{
		tool:      toolName,
		threshold: cfg.FailureThreshold,
		recovery:  cfg.RecoveryTimeout,
		now:       cfg.Clock,
		onChange:  cfg.OnStateChange,
	}
	if b.threshold <= 0 {
		b.threshold = defaults.BreakerFailureThreshold
	}
	if b.recovery <= 0 {
		b.recovery = duration.BreakerRecovery
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Tool returns the tool identity.
func (b *Breaker) Tool() string { return b.tool }

// Allow asks for permission to call the tool. In OPEN it first checks
// whether the cooldown has elapsed and, if so, moves to HALF_OPEN and
// admits the caller as the trial.
func (b *Breaker) Allow() (Ticket, error) {
	b.mu.Lock()
	now := b.now()
	var tr *Transition

	if b.state == StateOpen && now.Sub(b.lastFailure) >= b.recovery {
		tr = b.transition(StateHalfOpen, now)
	}

	var (
		ticket Ticket
		err    error
	)
	switch b.state {
	case StateClosed:
		ticket = Ticket{gen: b.gen}
	case StateHalfOpen:
		if b.trialInFlight {
			err = &OpenError{Tool: b.tool, SinceFailure: now.Sub(b.lastFailure), TrialInFlight: true}
		} else {
			b.trialInFlight = true
			ticket = Ticket{gen: b.gen, trial: true}
		}
	case StateOpen:
		err = &OpenError{
			Tool:         b.tool,
			SinceFailure: now.Sub(b.lastFailure),
			RetryAfter:   b.recovery - now.Sub(b.lastFailure),
		}
	}
	b.mu.Unlock()

	b.notify(tr)
	return ticket, err
}

// Record reports the outcome of a call admitted by Allow. Outcomes from
// tickets issued before the latest transition are ignored.
func (b *Breaker) Record(t Ticket, outcome Outcome) {
	b.mu.Lock()
	now := b.now()
	var tr *Transition

	if t.gen == b.gen {
		switch b.state {
		case StateClosed:
			switch outcome {
			case OutcomeSuccess:
				b.failures = 0
			case OutcomeFailure:
				b.failures++
				b.lastFailure = now
				if b.failures >= b.threshold {
					tr = b.transition(StateOpen, now)
				}
			}
		case StateHalfOpen:
			if t.trial {
				b.trialInFlight = false
				switch outcome {
				case OutcomeSuccess:
					tr = b.transition(StateClosed, now)
				case OutcomeFailure:
					b.failures++
					b.lastFailure = now
					tr = b.transition(StateOpen, now)
				}
			}
		}
	}
	b.mu.Unlock()

	b.notify(tr)
}

// transition must be called with mu held.
func (b *Breaker) transition(to State, now time.Time) *Transition {
	from := b.state
	b.state = to
	b.gen++
	tr := &Transition{Tool: b.tool, From: from, To: to, Failures: b.failures, At: now}

	switch to {
	case StateOpen:
		b.opens++
		b.trialInFlight = false
	case StateHalfOpen:
		b.trialInFlight = false
	case StateClosed:
		b.failures = 0
		b.trialInFlight = false
	}
	return tr
}

func (b *Breaker) notify(tr *Transition) {
	if tr != nil && b.onChange != nil {
		b.onChange(*tr)
	}
}

// State returns the stored state without evaluating the cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the record.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		Tool:                b.tool,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		LastFailure:         b.lastFailure,
		TrialInFlight:       b.trialInFlight,
		Opens:               b.opens,
	}
	if b.state == StateOpen {
		if left := b.recovery - b.now().Sub(b.lastFailure); left > 0 {
			s.RetryAfter = left
		}
	}
	return s
}
