package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner holds spinner animation frames.
type Spinner struct {
	Frames   []string
	Interval time.Duration
}

var (
	spinnerDots = Spinner{
		Frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		Interval: 80 * time.Millisecond,
	}
	spinnerLine = Spinner{
		Frames:   []string{"-", "\\", "|", "/"},
		Interval: 100 * time.Millisecond,
	}
)

// DefaultSpinner returns a braille-dot spinner on Unicode terminals,
// ASCII line spinner otherwise.
func DefaultSpinner() Spinner {
	if UnicodeTerminal() {
		return spinnerDots
	}
	return spinnerLine
}

// Activity animates a single status line while a tool runs. It renders
// nothing when w is not a terminal.
type Activity struct {
	w       io.Writer
	message string
	spinner Spinner
	started time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// StartActivity begins animating message on w.
func StartActivity(w io.Writer, message string) *Activity {
	a := &Activity{
		w:       w,
		message: message,
		spinner: DefaultSpinner(),
		started: time.Now(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if !IsTerminal(w) {
		close(a.done)
		return a
	}
	go a.loop()
	return a
}

func (a *Activity) loop() {
	defer close(a.done)
	ticker := time.NewTicker(a.spinner.Interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		frame := a.spinner.Frames[i%len(a.spinner.Frames)]
		elapsed := time.Since(a.started).Truncate(time.Second)
		fmt.Fprintf(a.w, "\r%s %s %s", SpinnerStyle.Render(frame), a.message, MutedStyle.Render(elapsed.String()))
		select {
		case <-a.stop:
			// Clear the line so the result starts on a clean row.
			fmt.Fprint(a.w, "\r\033[K")
			return
		case <-ticker.C:
		}
	}
}

// Stop ends the animation and waits for the line to be cleared. It is
// safe to call more than once.
func (a *Activity) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}
