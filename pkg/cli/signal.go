// Package cli holds the process-level helpers shared by the scanguard
// subcommands: signal handling, logger construction and environment lookups.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalContext returns a context derived from parent that is cancelled on
// SIGINT/SIGTERM. A notice is written to w when the first signal arrives.
// If a second signal arrives during gracePeriod, os.Exit(1) is called.
//
// Usage:
//
//	ctx, cancel := cli.SignalContext(context.Background(), duration.ShutdownGrace, os.Stderr)
//	defer cancel()
func SignalContext(parent context.Context, gracePeriod time.Duration, w io.Writer) (context.Context, context.CancelFunc) {
	return signalContextWithNotifier(parent, gracePeriod, w, nil, nil)
}

// signalContextWithNotifier is the internal implementation for testing.
// sigChan, if non-nil, overrides the real signal channel.
// exitFn, if non-nil, overrides os.Exit.
func signalContextWithNotifier(
	parent context.Context,
	gracePeriod time.Duration,
	w io.Writer,
	sigChan chan os.Signal,
	exitFn func(int),
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	ownChannel := sigChan == nil
	if ownChannel {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}
	if exitFn == nil {
		exitFn = os.Exit
	}
	if w == nil {
		w = io.Discard
	}

	go func() {
		select {
		case sig := <-sigChan:
			fmt.Fprintf(w, "\n%s received, stopping running scans...\n", sig)
			cancel()

			select {
			case <-sigChan:
				exitFn(1)
			case <-time.After(gracePeriod):
			}
		case <-ctx.Done():
		}
		if ownChannel {
			signal.Stop(sigChan)
		}
	}()

	return ctx, cancel
}
