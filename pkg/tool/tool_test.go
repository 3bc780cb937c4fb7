package tool

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/duration"
	"github.com/scanguard/scanguard/pkg/sanitize"
)

func TestErrorKind_CountsAsFailure(t *testing.T) {
	counted := map[ErrorKind]bool{
		KindNone:              false,
		KindValidation:        false,
		KindNotFound:          true,
		KindExecution:         true,
		KindResourceExhausted: false,
		KindCircuitOpen:       false,
		KindTimeout:           true,
	}
	for kind, want := range counted {
		assert.Equal(t, want, kind.CountsAsFailure(), "kind %q", kind)
	}
}

func TestErrorKind_Ran(t *testing.T) {
	assert.False(t, KindValidation.Ran())
	assert.False(t, KindResourceExhausted.Ran())
	assert.False(t, KindCircuitOpen.Ran())
	assert.True(t, KindNone.Ran())
	assert.True(t, KindTimeout.Ran())
	assert.True(t, KindNotFound.Ran())
}

func TestFailure(t *testing.T) {
	r := Failure(KindValidation, errors.New("bad target"))
	assert.False(t, r.OK())
	assert.Equal(t, "bad target", r.Error)
	assert.Equal(t, KindValidation, r.ErrorKind)
	assert.Equal(t, -1, r.ExitCode)

	r = Failure(KindCircuitOpen, nil)
	assert.Empty(t, r.Error)
}

func TestResult_JSONFieldNames(t *testing.T) {
	r := Result{Stdout: "out", TruncatedStdout: true, ErrorKind: KindTimeout, TimedOut: true, CorrelationID: "abc"}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "out", m["standard_output"])
	assert.Equal(t, true, m["truncated_stdout"])
	assert.Equal(t, true, m["timed_out"])
	assert.Equal(t, "TIMEOUT", m["error_kind"])
	assert.Equal(t, "abc", m["correlation_id"])
	assert.True(t, r.Truncated())
}

func TestDescriptor_WithDefaults(t *testing.T) {
	d := Descriptor{Name: "portscan", AllowedFlags: []string{"-x"}}.WithDefaults()

	assert.Equal(t, "portscan", d.Binary)
	assert.Equal(t, []string{TargetPlaceholder}, d.TargetArgs)
	assert.Equal(t, []int{0}, d.SuccessExitCodes)
	assert.Equal(t, duration.ToolDefault, d.DefaultTimeout)
	assert.Equal(t, duration.ToolMax, d.MaxTimeout)
	assert.Equal(t, defaults.ConcurrencyMinimal, d.Concurrency)
	assert.Equal(t, defaults.BreakerFailureThreshold, d.FailureThreshold)
	assert.Equal(t, duration.BreakerRecovery, d.RecoveryTimeout)
	assert.Equal(t, defaults.MaxArgLength, d.MaxArgLength)
	assert.Equal(t, defaults.MaxOutputBytes, d.MaxOutputBytes)
	require.NoError(t, d.Validate())
}

func TestDescriptor_Validate(t *testing.T) {
	base := func() Descriptor {
		return Descriptor{Name: "portscan", AllowedFlags: []string{"-x"}}.WithDefaults()
	}

	tests := []struct {
		name   string
		mutate func(*Descriptor)
	}{
		{"bad name", func(d *Descriptor) { d.Name = "Port Scan!" }},
		{"path binary", func(d *Descriptor) { d.Binary = "/usr/bin/nmap" }},
		{"relative binary", func(d *Descriptor) { d.Binary = "../nmap" }},
		{"no flags", func(d *Descriptor) { d.AllowedFlags = nil }},
		{"unflaglike flag", func(d *Descriptor) { d.AllowedFlags = []string{"x"} }},
		{"bare dash flag", func(d *Descriptor) { d.AllowedFlags = []string{"--"} }},
		{"unflaglike value flag", func(d *Descriptor) { d.ValueFlags = []string{"p"} }},
		{"default above max", func(d *Descriptor) { d.DefaultTimeout = d.MaxTimeout + 1 }},
		{"negative rate", func(d *Descriptor) { d.LaunchesPerMinute = -1 }},
		{"empty required group", func(d *Descriptor) { d.RequiredFlags = [][]string{{}} }},
		{"no placeholder", func(d *Descriptor) { d.TargetArgs = []string{"-u", "host"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(&d)
			assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)
		})
	}
}

func TestDescriptor_Argv(t *testing.T) {
	d := Descriptor{
		Name:         "gobuster",
		AllowedFlags: []string{"-w"},
		LeadingArgs:  []string{"dir"},
		TargetArgs:   []string{"-u", "http://" + TargetPlaceholder},
	}

	argv := d.Argv([]string{"-w", "/opt/list.txt"}, "web.lab.internal")
	assert.Equal(t, []string{"dir", "-w", "/opt/list.txt", "-u", "http://web.lab.internal"}, argv)

	plain := Descriptor{TargetArgs: []string{TargetPlaceholder}}
	assert.Equal(t, []string{"-sV", "10.0.0.1"}, plain.Argv([]string{"-sV"}, "10.0.0.1"))
}

func TestDescriptor_TakesValue(t *testing.T) {
	d := Descriptor{ValueFlags: []string{"-p", "--rate"}, SecretFlags: []string{"--cookie"}}

	assert.True(t, d.TakesValue("-p"))
	assert.True(t, d.TakesValue("--rate"))
	assert.True(t, d.TakesValue("--cookie"))
	assert.False(t, d.TakesValue("-p22"))
	assert.False(t, d.TakesValue("--rate=100"))
	assert.False(t, d.TakesValue("-sV"))
}

func TestDescriptor_IsSuccessExit(t *testing.T) {
	d := Descriptor{SuccessExitCodes: []int{0, 1}}
	assert.True(t, d.IsSuccessExit(0))
	assert.True(t, d.IsSuccessExit(1))
	assert.False(t, d.IsSuccessExit(2))
}

func TestCatalog(t *testing.T) {
	c, err := NewCatalog(Builtin()...)
	require.NoError(t, err)

	assert.Equal(t, 5, c.Len())
	assert.Equal(t, []string{"gobuster", "hydra_ssh", "masscan", "nmap", "sqlmap"}, c.Names())

	nmap, ok := c.Get("nmap")
	require.True(t, ok)
	assert.True(t, nmap.AllowRanges)
	assert.Equal(t, duration.ToolStandard, nmap.DefaultTimeout)

	hydra, ok := c.Get("hydra_ssh")
	require.True(t, ok)
	assert.Equal(t, "hydra", hydra.Binary)
	assert.False(t, hydra.AllowRanges)
	assert.Equal(t, defaults.BreakerFailureThresholdStrict, hydra.FailureThreshold)

	_, ok = c.Get("metasploit")
	assert.False(t, ok)

	all := c.All()
	require.Len(t, all, 5)
	assert.Equal(t, "gobuster", all[0].Name)
}

func TestCatalog_Duplicate(t *testing.T) {
	d := Descriptor{Name: "portscan", AllowedFlags: []string{"-x"}}
	_, err := NewCatalog(d, d)
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestCatalog_InvalidDescriptor(t *testing.T) {
	_, err := NewCatalog(Descriptor{Name: "portscan"})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestBuiltin_NoOutputFileFlags(t *testing.T) {
	for _, d := range Builtin() {
		for _, f := range d.AllowedFlags {
			assert.NotContains(t, []string{"-oX", "-oN", "-oG", "-oA", "-oL", "-oJ", "-o", "-iL", "-M"}, f,
				"%s allows %s, which reads or writes files outside the result envelope", d.Name, f)
		}
	}
}

func TestBuiltin_ValueFlagsAreAllowed(t *testing.T) {
	for _, d := range Builtin() {
		for _, f := range append(append([]string{}, d.ValueFlags...), d.SecretFlags...) {
			assert.True(t, sanitize.FlagAllowed(f, d.AllowedFlags), "%s: %s takes a value but is not allowed", d.Name, f)
		}
	}
}

func TestBuiltin_NmapRejectsScriptPaths(t *testing.T) {
	c, err := NewCatalog(Builtin()...)
	require.NoError(t, err)
	nmap, ok := c.Get("nmap")
	require.True(t, ok)

	for _, args := range []string{"--script=/tmp/x.nse", "--script /tmp/x.nse", "--script-args=x=1"} {
		_, err := sanitize.Sanitize(args, nmap.AllowedFlags, nmap.MaxArgLength)
		assert.ErrorIs(t, err, sanitize.ErrFlagNotAllowed, args)
	}

	_, err = sanitize.Sanitize("-sC -sV", nmap.AllowedFlags, nmap.MaxArgLength)
	assert.NoError(t, err)
}
