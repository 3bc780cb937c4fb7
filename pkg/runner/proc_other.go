//go:build !unix

package runner

import (
	"log/slog"
	"os/exec"
	"time"
)

// configureProcessGroup falls back to killing the direct child only.
func configureProcessGroup(cmd *exec.Cmd, _ time.Duration, _ *slog.Logger) (stop func()) {
	cmd.Cancel = func() error { return cmd.Process.Kill() }
	return func() {}
}

func killProcessGroup(int) {}
