// Package gate bounds how many invocations of one tool run at once and,
// optionally, how often new ones may start.
package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/scanguard/scanguard/pkg/defaults"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("gate: closed")

// Gate is a fixed-capacity admission limiter. Capacity never changes after
// New. Gates of different tools share nothing.
type Gate struct {
	capacity int64
	sem      *semaphore.Weighted
	limiter  *rate.Limiter

	inFlight atomic.Int64
	waiting  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Gate.
type Option func(*Gate)

// WithLaunchesPerMinute caps how often permits are handed out. Zero or
// negative disables the cap.
func WithLaunchesPerMinute(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// New creates a gate admitting capacity concurrent holders.
func New(capacity int, opts ...Option) *Gate {
	if capacity <= 0 {
		capacity = defaults.ConcurrencyMinimal
	}
	g := &Gate{
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Permit is a held slot. Release may be called any number of times; only
// the first returns the slot.
type Permit struct {
	g    *Gate
	once sync.Once
}

// Release returns the slot to the gate.
func (p *Permit) Release() {
	if p == nil || p.g == nil {
		return
	}
	p.once.Do(func() {
		p.g.inFlight.Add(-1)
		p.g.sem.Release(1)
	})
}

// Acquire blocks until a slot is free, then until the launch rate allows a
// start. It returns ctx's error if ctx ends first, and ErrClosed once the
// gate is closed. On error no slot is held.
func (g *Gate) Acquire(ctx context.Context) (*Permit, error) {
	select {
	case <-g.done:
		return nil, ErrClosed
	default:
	}

	// Close unblocks waiters by cancelling their context.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.done:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	g.waiting.Add(1)
	err := g.sem.Acquire(waitCtx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return nil, g.acquireErr(ctx, err)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(waitCtx); err != nil {
			g.sem.Release(1)
			return nil, g.acquireErr(ctx, err)
		}
	}

	g.inFlight.Add(1)
	return &Permit{g: g}, nil
}

func (g *Gate) acquireErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	select {
	case <-g.done:
		return ErrClosed
	default:
	}
	return err
}

// TryAcquire takes a slot only if one is free right now and the launch rate
// allows it.
func (g *Gate) TryAcquire() (*Permit, bool) {
	select {
	case <-g.done:
		return nil, false
	default:
	}
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	if g.limiter != nil && !g.limiter.Allow() {
		g.sem.Release(1)
		return nil, false
	}
	g.inFlight.Add(1)
	return &Permit{g: g}, true
}

// Close makes pending and future Acquire calls fail with ErrClosed. Held
// permits stay valid and may still be released.
func (g *Gate) Close() {
	g.closeOnce.Do(func() { close(g.done) })
}

// Capacity returns the fixed slot count.
func (g *Gate) Capacity() int { return int(g.capacity) }

// InFlight returns the number of held permits.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

// Waiting returns the number of callers blocked on a slot.
func (g *Gate) Waiting() int { return int(g.waiting.Load()) }
