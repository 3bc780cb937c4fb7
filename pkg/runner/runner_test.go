package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/tool"
)

// helperName is the symlink under which the test binary acts as a fake
// scanning tool instead of running tests.
const helperName = "fakescan"

func TestMain(m *testing.M) {
	if filepath.Base(os.Args[0]) == helperName {
		os.Exit(helperMain(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func helperMain(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: fakescan <mode> [args]")
		return 2
	}
	switch args[0] {
	case "echo":
		for _, a := range args[1:] {
			fmt.Println(a)
		}
		return 0
	case "exit":
		code, _ := strconv.Atoi(args[1])
		fmt.Fprintln(os.Stderr, "failing on purpose")
		return code
	case "flood":
		n, _ := strconv.Atoi(args[1])
		_, _ = os.Stdout.WriteString(strings.Repeat("x", n))
		_, _ = os.Stderr.WriteString(strings.Repeat("y", n))
		return 0
	case "env":
		for _, kv := range os.Environ() {
			fmt.Println(kv)
		}
		return 0
	case "sleep":
		fmt.Println("partial output")
		time.Sleep(time.Hour)
		return 0
	case "ignore-term":
		signal.Ignore(syscall.SIGTERM)
		fmt.Println("ignoring")
		time.Sleep(time.Hour)
		return 0
	case "spawn-grandchild":
		child := exec.Command(os.Args[0], "sleep")
		child.Stdout = os.Stdout
		if err := child.Start(); err != nil {
			return 3
		}
		fmt.Println("spawned", child.Process.Pid)
		time.Sleep(time.Hour)
		return 0
	case "selfkill":
		p, _ := os.FindProcess(os.Getpid())
		_ = p.Signal(syscall.SIGKILL)
		time.Sleep(time.Second)
		return 0
	}
	return 2
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHelperRunner links the test binary into a fresh bin dir and returns a
// runner restricted to that dir.
func newHelperRunner(t *testing.T, opts ...Option) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process-group tests need a unix host")
	}
	exe, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.Symlink(exe, filepath.Join(dir, helperName)))

	all := append([]Option{WithBinDirs(dir), WithLogger(quietLogger())}, opts...)
	return New(all...)
}

func TestResolve(t *testing.T) {
	r := newHelperRunner(t)
	dir := r.BinDirs()[0]

	path, err := r.Resolve(helperName)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, helperName), path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "noexec"), []byte("#!/bin/sh\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "adir"), 0o755))

	for _, name := range []string{"missing", "noexec", "adir", "", ".", "..", "../fakescan", "/bin/sh", `a\b`} {
		_, err := r.Resolve(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestWithBinDirs_IgnoresRelative(t *testing.T) {
	r := New(WithBinDirs("bin", "/opt/tools/", "./x"))
	assert.Equal(t, []string{"/opt/tools"}, r.BinDirs())
}

func TestRun_NotFound(t *testing.T) {
	r := newHelperRunner(t)
	res := r.Run(context.Background(), Spec{Binary: "nmap", Timeout: time.Second})

	assert.Equal(t, tool.KindNotFound, res.ErrorKind)
	assert.Equal(t, defaults.ExitCodeNotFound, res.ExitCode)
	assert.Contains(t, res.Error, "binary not found")
	assert.False(t, res.TimedOut)
}

func TestRun_Success(t *testing.T) {
	r := newHelperRunner(t)
	res := r.Run(context.Background(), Spec{
		Binary:  helperName,
		Args:    []string{"echo", "-sV", "value with spaces", "; rm -rf /"},
		Timeout: 10 * time.Second,
	})

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "-sV\nvalue with spaces\n; rm -rf /\n", res.Stdout, "argv must reach the process verbatim")
	assert.False(t, res.Truncated())
}

func TestRun_NonZeroExit(t *testing.T) {
	r := newHelperRunner(t)
	res := r.Run(context.Background(), Spec{
		Binary:  helperName,
		Args:    []string{"exit", "3"},
		Timeout: 10 * time.Second,
	})

	assert.Equal(t, tool.KindExecution, res.ErrorKind)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Error, "exit status 3")
	assert.Contains(t, res.Stderr, "failing on purpose")
}

func TestRun_SuccessExitCodes(t *testing.T) {
	r := newHelperRunner(t)
	res := r.Run(context.Background(), Spec{
		Binary:           helperName,
		Args:             []string{"exit", "1"},
		Timeout:          10 * time.Second,
		SuccessExitCodes: []int{0, 1},
	})

	assert.True(t, res.OK(), res.Error)
	assert.Equal(t, 1, res.ExitCode)
}

func TestRun_KilledBySignal(t *testing.T) {
	r := newHelperRunner(t)
	res := r.Run(context.Background(), Spec{
		Binary:  helperName,
		Args:    []string{"selfkill"},
		Timeout: 10 * time.Second,
	})

	assert.Equal(t, tool.KindExecution, res.ErrorKind)
	assert.Equal(t, defaults.ExitCodeUnknown, res.ExitCode)
	assert.Contains(t, res.Error, "killed")
	assert.False(t, res.TimedOut)
}

func TestRun_Truncation(t *testing.T) {
	r := newHelperRunner(t)
	res := r.Run(context.Background(), Spec{
		Binary:         helperName,
		Args:           []string{"flood", "50000"},
		Timeout:        10 * time.Second,
		MaxOutputBytes: 1000,
	})

	require.True(t, res.OK(), "truncation is a flagged partial success: %s", res.Error)
	assert.True(t, res.TruncatedStdout)
	assert.True(t, res.TruncatedStderr)
	assert.Equal(t, strings.Repeat("x", 1000), res.Stdout)
	assert.Equal(t, strings.Repeat("y", 1000), res.Stderr)
}

func TestRun_UnderCeilingNotTruncated(t *testing.T) {
	r := newHelperRunner(t)
	res := r.Run(context.Background(), Spec{
		Binary:         helperName,
		Args:           []string{"flood", "1000"},
		Timeout:        10 * time.Second,
		MaxOutputBytes: 1000,
	})

	require.True(t, res.OK(), res.Error)
	assert.False(t, res.Truncated())
	assert.Len(t, res.Stdout, 1000)
}

func TestRun_Timeout(t *testing.T) {
	const timeout = 500 * time.Millisecond
	const grace = 300 * time.Millisecond
	r := newHelperRunner(t, WithKillGrace(grace))

	start := time.Now()
	res := r.Run(context.Background(), Spec{
		Binary:  helperName,
		Args:    []string{"sleep"},
		Timeout: timeout,
	})
	elapsed := time.Since(start)

	assert.True(t, res.TimedOut)
	assert.Equal(t, tool.KindTimeout, res.ErrorKind)
	assert.Equal(t, defaults.ExitCodeTimeout, res.ExitCode)
	assert.Contains(t, res.Stdout, "partial output", "partial output must survive a timeout")
	assert.Less(t, elapsed, timeout+grace+3*time.Second)
}

func TestRun_TimeoutEscalatesToKill(t *testing.T) {
	const timeout = 500 * time.Millisecond
	const grace = 300 * time.Millisecond
	r := newHelperRunner(t, WithKillGrace(grace))

	start := time.Now()
	res := r.Run(context.Background(), Spec{
		Binary:  helperName,
		Args:    []string{"ignore-term"},
		Timeout: timeout,
	})
	elapsed := time.Since(start)

	assert.True(t, res.TimedOut)
	assert.Equal(t, defaults.ExitCodeTimeout, res.ExitCode)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+grace+3*time.Second)
}

func TestRun_TimeoutKillsGrandchildren(t *testing.T) {
	r := newHelperRunner(t, WithKillGrace(200*time.Millisecond), WithPipeDrain(200*time.Millisecond))

	start := time.Now()
	res := r.Run(context.Background(), Spec{
		Binary:  helperName,
		Args:    []string{"spawn-grandchild"},
		Timeout: 500 * time.Millisecond,
	})

	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 4*time.Second, "a grandchild holding stdout must not stall the runner")

	assert.Contains(t, res.Stdout, "spawned")
}

func TestRun_CallerCancel(t *testing.T) {
	r := newHelperRunner(t, WithKillGrace(200*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	res := r.Run(ctx, Spec{
		Binary:  helperName,
		Args:    []string{"sleep"},
		Timeout: time.Minute,
	})

	assert.Equal(t, tool.KindExecution, res.ErrorKind)
	assert.Contains(t, res.Error, "cancelled")
	assert.False(t, res.TimedOut)
}

func TestRun_CallerDeadlineIsTimeout(t *testing.T) {
	r := newHelperRunner(t, WithKillGrace(200*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res := r.Run(ctx, Spec{
		Binary:  helperName,
		Args:    []string{"sleep"},
		Timeout: time.Minute,
	})

	assert.True(t, res.TimedOut)
	assert.Equal(t, tool.KindTimeout, res.ErrorKind)
}

func TestRun_RestrictedEnvironment(t *testing.T) {
	t.Setenv("SCANGUARD_TEST_PASS", "visible")
	t.Setenv("SCANGUARD_TEST_SECRET", "hidden")
	t.Setenv("HOME", "/home/scanner")

	r := newHelperRunner(t)
	res := r.Run(context.Background(), Spec{
		Binary:         helperName,
		Args:           []string{"env"},
		Timeout:        10 * time.Second,
		EnvPassthrough: []string{"SCANGUARD_TEST_PASS", "SCANGUARD_TEST_UNSET", "PATH"},
	})
	require.True(t, res.OK(), res.Error)

	env := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			env[k] = v
		}
	}

	assert.Equal(t, r.BinDirs()[0], env["PATH"])
	assert.Equal(t, "/home/scanner", env["HOME"])
	assert.Equal(t, "C", env["LANG"])
	assert.Equal(t, "visible", env["SCANGUARD_TEST_PASS"])
	assert.NotContains(t, env, "SCANGUARD_TEST_SECRET")
	assert.NotContains(t, env, "SCANGUARD_TEST_UNSET")
}

func TestRun_Concurrent(t *testing.T) {
	r := newHelperRunner(t)

	results := make(chan tool.Result, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			results <- r.Run(context.Background(), Spec{
				Binary:  helperName,
				Args:    []string{"echo", strconv.Itoa(i)},
				Timeout: 10 * time.Second,
			})
		}(i)
	}
	for i := 0; i < 8; i++ {
		res := <-results
		assert.True(t, res.OK(), res.Error)
	}
}

func TestProcessInterface(t *testing.T) {
	var _ Process = New()
}
