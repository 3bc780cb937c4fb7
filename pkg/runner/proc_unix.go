//go:build unix

package runner

import (
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// configureProcessGroup puts the child in its own process group and makes
// context cancellation signal the whole group: SIGTERM first, SIGKILL once
// grace has passed. The returned func cancels a pending SIGKILL.
func configureProcessGroup(cmd *exec.Cmd, grace time.Duration, logger *slog.Logger) (stop func()) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var (
		mu    sync.Mutex
		timer *time.Timer
		done  bool
	)
	cmd.Cancel = func() error {
		pid := cmd.Process.Pid
		err := unix.Kill(-pid, unix.SIGTERM)
		mu.Lock()
		defer mu.Unlock()
		if !done {
			timer = time.AfterFunc(grace, func() {
				mu.Lock()
				defer mu.Unlock()
				if done {
					return
				}
				logger.Warn("process ignored SIGTERM, killing group", slog.Int("pid", pid))
				_ = unix.Kill(-pid, unix.SIGKILL)
			})
		}
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}

	return func() {
		mu.Lock()
		defer mu.Unlock()
		done = true
		if timer != nil {
			timer.Stop()
		}
	}
}

// killProcessGroup sends SIGKILL to every remaining member of the group led
// by pid. A group with no members left is not an error.
func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, unix.SIGKILL)
}
