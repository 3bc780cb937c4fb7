package exitcode

import (
	"strings"
	"sync"
	"testing"

	"github.com/scanguard/scanguard/pkg/tool"
)

func TestForKind(t *testing.T) {
	tests := []struct {
		kind tool.ErrorKind
		want Code
	}{
		{tool.KindNone, Success},
		{tool.KindValidation, Rejected},
		{tool.KindCircuitOpen, Unavailable},
		{tool.KindResourceExhausted, Unavailable},
		{tool.KindExecution, ToolFailed},
		{tool.KindNotFound, ToolFailed},
		{tool.KindTimeout, ToolFailed},
	}
	for _, tt := range tests {
		if got := ForKind(tt.kind); got != tt.want {
			t.Errorf("ForKind(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name  string
		kinds []tool.ErrorKind
		want  Code
	}{
		{"empty", nil, Success},
		{"all ok", []tool.ErrorKind{tool.KindNone, tool.KindNone}, Success},
		{"one failure", []tool.ErrorKind{tool.KindNone, tool.KindTimeout}, ToolFailed},
		{"rejection wins", []tool.ErrorKind{tool.KindExecution, tool.KindValidation}, Rejected},
		{"failure beats unavailable", []tool.ErrorKind{tool.KindCircuitOpen, tool.KindNotFound}, ToolFailed},
		{"unavailable only", []tool.ErrorKind{tool.KindCircuitOpen}, Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			for _, k := range tt.kinds {
				m.Record(k)
			}
			got, reason := m.ExitCode()
			if got != tt.want {
				t.Errorf("ExitCode() = %d (%s), want %d", got, reason, tt.want)
			}
			if reason == "" {
				t.Error("empty reason")
			}
		})
	}
}

func TestExitCode_ReasonCounts(t *testing.T) {
	m := New()
	m.RecordResult(tool.Result{ErrorKind: tool.KindValidation})
	m.RecordResult(tool.Result{ErrorKind: tool.KindValidation})

	_, reason := m.ExitCode()
	if !strings.Contains(reason, "count: 2") {
		t.Errorf("reason %q does not carry the count", reason)
	}
}

func TestExitCode_Priority(t *testing.T) {
	m := New()
	m.Record(tool.KindValidation)
	m.SetInternalError()
	if got, _ := m.ExitCode(); got != Internal {
		t.Errorf("got %d, want Internal", got)
	}
	m.SetInterrupted()
	if got, _ := m.ExitCode(); got != Interrupted {
		t.Errorf("got %d, want Interrupted", got)
	}
}

func TestCounts_IsCopy(t *testing.T) {
	m := New()
	m.Record(tool.KindNone)
	c := m.Counts()
	c[tool.KindNone] = 99
	if m.Counts()[tool.KindNone] != 1 {
		t.Error("Counts exposed internal map")
	}
}

func TestConcurrentRecord(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(tool.KindExecution)
		}()
	}
	wg.Wait()
	if n := m.Counts()[tool.KindExecution]; n != 50 {
		t.Errorf("recorded %d, want 50", n)
	}
}

func TestCodeStrings(t *testing.T) {
	for _, c := range []Code{Success, ToolFailed, Rejected, Unavailable, Internal, Interrupted} {
		if strings.HasPrefix(CodeString(c), "unknown") {
			t.Errorf("code %d has no name", c)
		}
		if strings.HasPrefix(CodeDescription(c), "Unknown") {
			t.Errorf("code %d has no description", c)
		}
	}
	if CodeString(Code(42)) != "unknown_code_42" {
		t.Errorf("CodeString(42) = %q", CodeString(Code(42)))
	}
}
