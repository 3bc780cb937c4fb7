package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultCapacity(t *testing.T) {
	g := New(0)
	assert.Equal(t, 1, g.Capacity())
	assert.Equal(t, 0, g.InFlight())
}

func TestGate_BoundsConcurrency(t *testing.T) {
	t.Parallel()
	g := New(3)

	var (
		current atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := g.Acquire(context.Background())
			require.NoError(t, err)
			defer p.Release()

			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 0, g.InFlight())
}

func TestPermit_ReleaseIdempotent(t *testing.T) {
	g := New(1)
	p, err := g.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, g.InFlight())

	p.Release()
	p.Release()
	assert.Equal(t, 0, g.InFlight())

	// A double release must not have created a second slot.
	a, ok := g.TryAcquire()
	require.True(t, ok)
	_, ok = g.TryAcquire()
	assert.False(t, ok)
	a.Release()

	var nilPermit *Permit
	nilPermit.Release()
}

func TestGate_AcquireHonoursContext(t *testing.T) {
	g := New(1)
	held, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InFlight())
	assert.Equal(t, 0, g.Waiting())
}

func TestGate_ReleaseWakesWaiter(t *testing.T) {
	g := New(1)
	held, err := g.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		p, err := g.Acquire(context.Background())
		if err == nil {
			p.Release()
		}
		got <- err
	}()

	require.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)
	held.Release()

	select {
	case err := <-got:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestGate_CloseUnblocksWaiters(t *testing.T) {
	g := New(1)
	held, err := g.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		_, err := g.Acquire(context.Background())
		got <- err
	}()
	require.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)

	g.Close()
	select {
	case err := <-got:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Close")
	}

	_, err = g.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	held.Release()
	assert.Equal(t, 0, g.InFlight())
}

func TestGate_LaunchRate(t *testing.T) {
	// 600 per minute is one launch every 100ms with a burst of one.
	g := New(4, WithLaunchesPerMinute(600))

	first, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer first.Release()

	_, ok := g.TryAcquire()
	assert.False(t, ok, "slot is free but the launch rate is exhausted")

	start := time.Now()
	second, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer second.Release()
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestGate_RateWaitCancelledFreesSlot(t *testing.T) {
	g := New(1, WithLaunchesPerMinute(1))

	p, err := g.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, g.InFlight())
}
