// Package runner spawns external tool binaries with an explicit argument
// vector, a wall-clock deadline, bounded output capture and a restricted
// environment. It never invokes a shell and never returns a bare error:
// every outcome is a tool.Result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/duration"
	"github.com/scanguard/scanguard/pkg/iohelper"
	"github.com/scanguard/scanguard/pkg/tool"
)

// Spec describes one process launch.
type Spec struct {
	// Binary is a bare executable name resolved against the bin dirs.
	Binary string
	// Args excludes argv[0].
	Args             []string
	Timeout          time.Duration
	MaxOutputBytes   int
	SuccessExitCodes []int
	EnvPassthrough   []string
}

// Process launches one Spec. *Runner implements it; the orchestrator
// accepts any implementation.
type Process interface {
	Run(ctx context.Context, spec Spec) tool.Result
}

// Runner resolves and launches binaries. It holds no per-call state and is
// safe for concurrent use.
type Runner struct {
	binDirs   []string
	killGrace time.Duration
	pipeDrain time.Duration
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithBinDirs replaces the executable search directories. Relative entries
// are ignored.
func WithBinDirs(dirs ...string) Option {
	return func(r *Runner) {
		r.binDirs = r.binDirs[:0]
		for _, d := range dirs {
			if filepath.IsAbs(d) {
				r.binDirs = append(r.binDirs, filepath.Clean(d))
			}
		}
	}
}

// WithKillGrace sets the delay between SIGTERM and SIGKILL.
func WithKillGrace(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.killGrace = d
		}
	}
}

// WithPipeDrain bounds output copying after the process exits.
func WithPipeDrain(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pipeDrain = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner searching defaults.BinDirs.
func New(opts ...Option) *Runner {
	r := &Runner{
		binDirs:   append([]string(nil), defaults.BinDirs...),
		killGrace: duration.KillGrace,
		pipeDrain: duration.PipeDrain,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BinDirs returns the search directories.
func (r *Runner) BinDirs() []string {
	return append([]string(nil), r.binDirs...)
}

// Resolve finds binary in the bin dirs. Only regular executable files
// qualify; symlinks are followed.
func (r *Runner) Resolve(binary string) (string, error) {
	if binary == "" || strings.ContainsAny(binary, `/\`) || binary == "." || binary == ".." {
		return "", fmt.Errorf("%w: %q is not a bare executable name", ErrNotFound, binary)
	}
	for _, dir := range r.binDirs {
		candidate := filepath.Join(dir, binary)
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %s)", ErrNotFound, binary, strings.Join(r.binDirs, string(os.PathListSeparator)))
}

// Run launches spec and waits for it, its deadline, or ctx.
func (r *Runner) Run(ctx context.Context, spec Spec) tool.Result {
	path, err := r.Resolve(spec.Binary)
	if err != nil {
		return tool.Result{
			ExitCode:  defaults.ExitCodeNotFound,
			Error:     err.Error(),
			ErrorKind: tool.KindNotFound,
		}
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = duration.ToolDefault
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limit := spec.MaxOutputBytes
	if limit <= 0 {
		limit = defaults.MaxOutputBytes
	}
	stdout := iohelper.NewCappedBuffer(limit)
	stderr := iohelper.NewCappedBuffer(limit)

	env, passed := r.environment(spec.EnvPassthrough)

	cmd := exec.CommandContext(runCtx, path, spec.Args...)
	cmd.Env = env
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.killGrace + r.pipeDrain
	stopEscalation := configureProcessGroup(cmd, r.killGrace, r.logger)
	defer stopEscalation()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return tool.Result{
			ExitCode:  defaults.ExitCodeUnknown,
			Error:     fmt.Errorf("%w: %s: %v", ErrStart, spec.Binary, err).Error(),
			ErrorKind: tool.KindExecution,
		}
	}
	pid := cmd.Process.Pid
	r.logger.Debug("process started",
		slog.String("binary", path),
		slog.Int("pid", pid),
		slog.Int("argc", len(spec.Args)),
		slog.Any("env_passthrough", passed),
	)

	waitErr := cmd.Wait()
	stopEscalation()
	// Reap anything the tool left behind in its group.
	killProcessGroup(pid)

	res := tool.Result{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		TruncatedStdout: stdout.Truncated(),
		TruncatedStderr: stderr.Truncated(),
		ExitCode:        defaults.ExitCodeUnknown,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case waitErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = defaults.ExitCodeTimeout
		res.ErrorKind = tool.KindTimeout
		res.Error = fmt.Sprintf("%v after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
	case waitErr != nil && runCtx.Err() != nil:
		res.ErrorKind = tool.KindExecution
		res.Error = ErrCancelled.Error()
	case res.ExitCode < 0:
		res.ErrorKind = tool.KindExecution
		res.Error = fmt.Sprintf("%s: %s", spec.Binary, describeExit(cmd, waitErr))
	case !successExit(res.ExitCode, spec.SuccessExitCodes):
		res.ErrorKind = tool.KindExecution
		res.Error = fmt.Sprintf("%s: exit status %d", spec.Binary, res.ExitCode)
	case errors.Is(waitErr, exec.ErrWaitDelay):
		r.logger.Warn("output pipes held open after exit",
			slog.String("binary", spec.Binary),
			slog.Int("pid", pid),
		)
	}

	r.logger.Debug("process finished",
		slog.String("binary", spec.Binary),
		slog.Int("pid", pid),
		slog.Int("exit_code", res.ExitCode),
		slog.Bool("timed_out", res.TimedOut),
		slog.Int64("stdout_bytes", stdout.Written()),
		slog.Int64("stderr_bytes", stderr.Written()),
	)
	return res
}

func describeExit(cmd *exec.Cmd, waitErr error) string {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.String()
	}
	if waitErr != nil {
		return waitErr.Error()
	}
	return "unknown exit"
}

func successExit(code int, codes []int) bool {
	if len(codes) == 0 {
		return code == 0
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// environment builds the child environment: PATH limited to the bin dirs,
// HOME, a fixed C locale, and any passthrough keys set in this process.
func (r *Runner) environment(passthrough []string) (env []string, passedKeys []string) {
	env = append(env, "PATH="+strings.Join(r.binDirs, string(os.PathListSeparator)))
	if v := os.Getenv("HOME"); v != "" {
		env = append(env, "HOME="+v)
	}
	env = append(env, "LANG=C", "LC_ALL=C")
	for _, key := range passthrough {
		switch key {
		case "PATH", "HOME", "LANG", "LC_ALL", "":
			continue
		}
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
			passedKeys = append(passedKeys, key)
		}
	}
	return env, passedKeys
}
