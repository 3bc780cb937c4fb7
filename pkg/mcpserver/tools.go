package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/scanguard/scanguard/pkg/core"
	"github.com/scanguard/scanguard/pkg/tool"
)

// Names of the gateway's own tools. A scanner descriptor may not reuse them.
const (
	toolListTools  = "list_tools"
	toolToolStatus = "tool_status"
)

// registerTools adds one tool per catalog entry plus the gateway tools.
func (s *Server) registerTools() error {
	for _, d := range s.exec.Catalog().All() {
		if d.Name == toolListTools || d.Name == toolToolStatus {
			return fmt.Errorf("mcpserver: tool name %q is reserved", d.Name)
		}
		s.addScannerTool(d)
	}
	s.addListToolsTool()
	s.addToolStatusTool()
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// <scanner>: one guarded invocation of a catalog tool
// ═══════════════════════════════════════════════════════════════════════════

type runArgs struct {
	Target         string `json:"target"`
	Arguments      string `json:"arguments"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	CorrelationID  string `json:"correlation_id"`
}

type runResponse struct {
	Tool       string      `json:"tool"`
	Summary    string      `json:"summary"`
	DurationMS int64       `json:"duration_ms"`
	Result     tool.Result `json:"result"`
	NextSteps  []string    `json:"next_steps,omitempty"`
}

func (s *Server) addScannerTool(d tool.Descriptor) {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:        d.Name,
			Title:       fmt.Sprintf("Run %s", d.Binary),
			Description: scannerDescription(d),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target": map[string]any{
						"type":        "string",
						"description": scannerTargetHint(d),
					},
					"arguments": map[string]any{
						"type":        "string",
						"description": "Flags and values, split like a shell would. Every flag must be on the allow-list; shell metacharacters are rejected.",
						"maxLength":   d.MaxArgLength,
					},
					"timeout_seconds": map[string]any{
						"type":        "integer",
						"description": fmt.Sprintf("Deadline for this run. Defaults to %d.", int(d.DefaultTimeout.Seconds())),
						"minimum":     1,
						"maximum":     int(d.MaxTimeout.Seconds()),
					},
					"correlation_id": map[string]any{
						"type":        "string",
						"description": "Optional id echoed in the result and in audit events. Generated when omitted.",
					},
				},
				"required": []string{"target"},
			},
			Annotations: &mcp.ToolAnnotations{
				Title:           fmt.Sprintf("Run %s", d.Binary),
				ReadOnlyHint:    false,
				IdempotentHint:  false,
				OpenWorldHint:   boolPtr(true),
				DestructiveHint: boolPtr(false),
			},
		},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return s.handleScanner(ctx, req, d)
		},
	)
}

func scannerDescription(d tool.Descriptor) string {
	var b strings.Builder
	b.WriteString(d.Description)
	if d.Description != "" {
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Runs %s against one validated target.\n\n", d.Binary)
	fmt.Fprintf(&b, "ALLOWED FLAGS: %s\n", strings.Join(d.AllowedFlags, " "))
	if len(d.RequiredFlags) > 0 {
		groups := make([]string, 0, len(d.RequiredFlags))
		for _, g := range d.RequiredFlags {
			groups = append(groups, strings.Join(g, " or "))
		}
		fmt.Fprintf(&b, "REQUIRED: %s\n", strings.Join(groups, "; "))
	}
	if len(d.ValueFlags) > 0 {
		fmt.Fprintf(&b, "VALUE FLAGS: %s (the next word is the value; any other bare word is checked as a target)\n", strings.Join(d.ValueFlags, " "))
	}
	fmt.Fprintf(&b, "TIMEOUT: default %s, max %s\n", d.DefaultTimeout, d.MaxTimeout)
	fmt.Fprintf(&b, "CONCURRENCY: %d\n", d.Concurrency)
	return b.String()
}

func scannerTargetHint(d tool.Descriptor) string {
	if d.AllowRanges {
		return "Private address, CIDR range inside one authorized block, or lab hostname."
	}
	return "Private address or lab hostname. Ranges are not accepted by this tool."
}

func (s *Server) handleScanner(ctx context.Context, req *mcp.CallToolRequest, d tool.Descriptor) (*mcp.CallToolResult, error) {
	var args runArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	notifyProgress(ctx, req, 0, 1, fmt.Sprintf("Running %s against %s", d.Name, args.Target))

	res := s.exec.Execute(ctx, d.Name, tool.Request{
		Target:          args.Target,
		ArgumentString:  args.Arguments,
		TimeoutOverride: time.Duration(args.TimeoutSeconds) * time.Second,
		CorrelationID:   args.CorrelationID,
	})

	notifyProgress(ctx, req, 1, 1, fmt.Sprintf("%s finished", d.Name))
	if !res.OK() {
		logToSession(ctx, req, logWarning, fmt.Sprintf("%s: %s: %s", d.Name, res.ErrorKind, res.Error))
	}

	out, err := jsonResult(runResponse{
		Tool:       d.Name,
		Summary:    summarize(d, res),
		DurationMS: res.ExecutionDuration.Milliseconds(),
		Result:     res,
		NextSteps:  nextSteps(d, res),
	})
	if err != nil {
		return nil, err
	}
	out.IsError = !res.OK()
	return out, nil
}

func summarize(d tool.Descriptor, res tool.Result) string {
	switch res.ErrorKind {
	case tool.KindNone:
		msg := fmt.Sprintf("%s exited %d after %s", d.Name, res.ExitCode, res.ExecutionDuration.Round(time.Millisecond))
		if res.Truncated() {
			msg += "; output truncated"
		}
		return msg
	case tool.KindTimeout:
		return fmt.Sprintf("%s was killed at its deadline", d.Name)
	default:
		return fmt.Sprintf("%s: %s", res.ErrorKind, res.Error)
	}
}

func nextSteps(d tool.Descriptor, res tool.Result) []string {
	switch res.ErrorKind {
	case tool.KindNone:
		if res.Truncated() {
			return []string{"Output hit the size ceiling. Narrow the scan (fewer ports, smaller range) to see everything."}
		}
		return nil
	case tool.KindValidation:
		return []string{
			"Fix the target or arguments; nothing was executed.",
			fmt.Sprintf("Call %s for %s's allowed and required flags.", toolListTools, d.Name),
		}
	case tool.KindResourceExhausted:
		return []string{fmt.Sprintf("Shorten the argument string below %d bytes, or retry once a slot is free.", d.MaxArgLength)}
	case tool.KindCircuitOpen:
		return []string{fmt.Sprintf("Do not retry yet. Call %s to see when %s accepts calls again.", toolToolStatus, d.Name)}
	case tool.KindTimeout:
		return []string{fmt.Sprintf("Narrow the scan or raise timeout_seconds (max %d).", int(d.MaxTimeout.Seconds()))}
	case tool.KindNotFound:
		return []string{fmt.Sprintf("%s is not installed on the gateway host. Use another tool.", d.Binary)}
	default:
		return []string{"Read standard_error for the tool's own diagnostics."}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// list_tools: catalog inventory
// ═══════════════════════════════════════════════════════════════════════════

type catalogEntry struct {
	Name                  string     `json:"name"`
	Binary                string     `json:"binary"`
	Description           string     `json:"description,omitempty"`
	AllowedFlags          []string   `json:"allowed_flags"`
	RequiredFlags         [][]string `json:"required_flags,omitempty"`
	AllowRanges           bool       `json:"allow_ranges"`
	DefaultTimeoutSeconds int        `json:"default_timeout_seconds"`
	MaxTimeoutSeconds     int        `json:"max_timeout_seconds"`
	Concurrency           int        `json:"concurrency"`
	MaxArgLength          int        `json:"max_arg_length"`
}

func catalogEntries(c *tool.Catalog) []catalogEntry {
	out := make([]catalogEntry, 0, c.Len())
	for _, d := range c.All() {
		out = append(out, catalogEntry{
			Name:                  d.Name,
			Binary:                d.Binary,
			Description:           d.Description,
			AllowedFlags:          d.AllowedFlags,
			RequiredFlags:         d.RequiredFlags,
			AllowRanges:           d.AllowRanges,
			DefaultTimeoutSeconds: int(d.DefaultTimeout.Seconds()),
			MaxTimeoutSeconds:     int(d.MaxTimeout.Seconds()),
			Concurrency:           d.Concurrency,
			MaxArgLength:          d.MaxArgLength,
		})
	}
	return out
}

func (s *Server) addListToolsTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  toolListTools,
			Title: "List Scanner Tools",
			Description: `Inventory of the scanners this gateway can run. Nothing is executed.

Returns each tool's allowed flags, required flag groups, whether CIDR ranges are accepted, timeout bounds and concurrency.`,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Annotations: &mcp.ToolAnnotations{
				Title:          "List Scanner Tools",
				ReadOnlyHint:   true,
				IdempotentHint: true,
				OpenWorldHint:  boolPtr(false),
			},
		},
		func(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(map[string]any{
				"count": s.exec.Catalog().Len(),
				"tools": catalogEntries(s.exec.Catalog()),
			})
		},
	)
}

// ═══════════════════════════════════════════════════════════════════════════
// tool_status: breaker and slot state
// ═══════════════════════════════════════════════════════════════════════════

type statusArgs struct {
	Tool string `json:"tool"`
}

type statusView struct {
	Tool                string    `json:"tool"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
	RetryAfterSeconds   float64   `json:"retry_after_seconds,omitempty"`
	TrialInFlight       bool      `json:"trial_in_flight"`
	Opens               uint64    `json:"opens"`
	InFlight            int       `json:"in_flight"`
	Waiting             int       `json:"waiting"`
	Capacity            int       `json:"capacity"`
}

func newStatusView(st core.ToolStatus) statusView {
	return statusView{
		Tool:                st.Tool,
		State:               st.State.String(),
		ConsecutiveFailures: st.ConsecutiveFailures,
		LastFailure:         st.LastFailure,
		RetryAfterSeconds:   st.RetryAfter.Seconds(),
		TrialInFlight:       st.TrialInFlight,
		Opens:               st.Opens,
		InFlight:            st.InFlight,
		Waiting:             st.Waiting,
		Capacity:            st.Capacity,
	}
}

type statusResponse struct {
	Healthy           bool         `json:"healthy"`
	Tools             []statusView `json:"tools"`
	RecentTransitions []transition `json:"recent_transitions"`
}

func (s *Server) addToolStatusTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  toolToolStatus,
			Title: "Scanner Health",
			Description: `Circuit breaker state and slot usage per scanner, plus recent breaker transitions. Nothing is executed.

States: CLOSED (normal), OPEN (failing fast until retry_after_seconds passes), HALF_OPEN (one trial call decides).`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tool": map[string]any{
						"type":        "string",
						"description": "Limit the report to one tool. Omit for all tools.",
					},
				},
			},
			Annotations: &mcp.ToolAnnotations{
				Title:          "Scanner Health",
				ReadOnlyHint:   true,
				IdempotentHint: false,
				OpenWorldHint:  boolPtr(false),
			},
		},
		s.handleToolStatus,
	)
}

func (s *Server) handleToolStatus(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args statusArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	resp := statusResponse{Healthy: s.exec.Healthy(), Tools: []statusView{}}
	if args.Tool != "" {
		st, ok := s.exec.ToolStatus(args.Tool)
		if !ok {
			return errorResult(fmt.Sprintf("unknown tool %q. Call %s for the catalog.", args.Tool, toolListTools)), nil
		}
		resp.Tools = append(resp.Tools, newStatusView(st))
	} else {
		for _, st := range s.exec.Status() {
			resp.Tools = append(resp.Tools, newStatusView(st))
		}
	}
	resp.RecentTransitions = s.recent.snapshot(args.Tool)
	if resp.RecentTransitions == nil {
		resp.RecentTransitions = []transition{}
	}
	return jsonResult(resp)
}
