package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/scanguard/scanguard/pkg/core"
	"github.com/scanguard/scanguard/pkg/defaults"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Typed logging level constants. The MCP SDK defines LoggingLevel as a raw
// string type without exported constants.
const (
	logInfo    mcp.LoggingLevel = "info"
	logWarning mcp.LoggingLevel = "warning"
)

const serviceName = defaults.ToolName + "-mcp"

// Config holds MCP server configuration.
type Config struct {
	// Executor runs every scanner tool call. Required.
	Executor *core.Executor

	// Metrics, when set, is mounted at /metrics on the HTTP handler.
	Metrics http.Handler

	// Logger receives transport and handler errors.
	Logger *slog.Logger
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server exposes the executor's tool catalog over MCP.
type Server struct {
	mcp     *mcp.Server
	exec    *core.Executor
	metrics http.Handler
	logger  *slog.Logger
	recent  *transitionLog
	ready   atomic.Bool
}

// MCPServer returns the underlying MCP server for direct access (e.g., testing).
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// MarkReady signals that start-up checks passed. Until then /health
// returns 503 Service Unavailable.
func (s *Server) MarkReady() { s.ready.Store(true) }

// IsReady reports whether MarkReady has been called.
func (s *Server) IsReady() bool { return s.ready.Load() }

// New creates the server with one tool per catalog entry plus the
// list_tools and tool_status tools, resources and prompts.
func New(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("mcpserver: executor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		exec:    cfg.Executor,
		metrics: cfg.Metrics,
		logger:  logger,
		recent:  newTransitionLog(recentTransitions),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    defaults.ToolName,
			Title:   "Scanguard Tool Gateway",
			Version: defaults.Version,
		},
		&mcp.ServerOptions{
			Instructions: serverInstructions,
		},
	)

	if err := s.registerTools(); err != nil {
		return nil, err
	}
	s.registerResources()
	s.registerPrompts()

	return s, nil
}

// RunStdio serves one client over stdin/stdout until ctx ends or the
// client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("mcp stdio transport started")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns the streamable HTTP transport with the health and
// metrics endpoints.
//
// The handler mounts:
//   - /health  readiness probe with per-tool breaker states (GET, HEAD)
//   - /metrics Prometheus exposition, when configured
//   - /mcp     streamable HTTP transport
//   - /        streamable HTTP transport (default mount)
func (s *Server) HTTPHandler() http.Handler {
	streamable := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return s.mcp },
		&mcp.StreamableHTTPOptions{Stateless: false},
	)

	mux := http.NewServeMux()
	mux.HandleFunc(defaults.HealthPath, s.handleHealth)
	if s.metrics != nil {
		mux.Handle(defaults.MetricsPath, s.metrics)
	}
	mux.Handle("/mcp", streamable)
	mux.Handle("/", streamable)

	return s.recoveryMiddleware(securityHeaders(mux))
}

type healthTool struct {
	Tool     string `json:"tool"`
	State    string `json:"state"`
	InFlight int    `json:"in_flight"`
	Capacity int    `json:"capacity"`
}

type healthResponse struct {
	Status  string       `json:"status"`
	Service string       `json:"service"`
	Version string       `json:"version"`
	Tools   []healthTool `json:"tools,omitempty"`
}

// handleHealth answers 503 before MarkReady and 200 afterwards. An open
// circuit marks the service degraded but still answers 200: the gateway
// itself is serving and other tools remain usable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{Status: "ok", Service: serviceName, Version: defaults.Version}
	code := http.StatusOK
	switch {
	case !s.IsReady():
		resp.Status = "starting"
		code = http.StatusServiceUnavailable
	case !s.exec.Healthy():
		resp.Status = "degraded"
	}
	for _, st := range s.exec.Status() {
		resp.Tools = append(resp.Tools, healthTool{
			Tool:     st.Tool,
			State:    st.State.String(),
			InFlight: st.InFlight,
			Capacity: st.Capacity,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// recoveryMiddleware catches panics in HTTP handlers and returns a 500
// instead of killing the connection.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic in HTTP handler",
					slog.Any("panic", err),
					slog.String("stack", string(debug.Stack())),
				)
				// Best-effort: if headers were already sent, WriteHeader is a no-op.
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// securityHeaders adds standard defense-in-depth headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Helpers: result builders
// ---------------------------------------------------------------------------

// notifyProgress sends a progress notification to the client if a progress
// token was provided in the request. Safe to call when session/token is nil.
func notifyProgress(ctx context.Context, req *mcp.CallToolRequest, progress, total float64, message string) {
	token := req.Params.GetProgressToken()
	if token == nil || req.Session == nil {
		return
	}
	// Best-effort: progress notifications are advisory.
	_ = req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

// logToSession sends a structured log message to the MCP client.
func logToSession(ctx context.Context, req *mcp.CallToolRequest, level mcp.LoggingLevel, data any) {
	if req.Session == nil {
		return
	}
	_ = req.Session.Log(ctx, &mcp.LoggingMessageParams{
		Level:  level,
		Logger: defaults.ToolName,
		Data:   data,
	})
}

// textResult creates a CallToolResult with a single text content block.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// jsonResult marshals v to indented JSON and wraps it in a CallToolResult.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return textResult(string(data)), nil
}

// errorResult creates an IsError CallToolResult so the model can see the
// error and self-correct rather than raising a protocol-level exception.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// boolPtr returns a pointer to b. Used for optional bool fields in the SDK.
func boolPtr(b bool) *bool { return &b }

// parseArgs unmarshals the raw JSON arguments from a tool call into dst.
// Unknown fields are rejected so a misspelled option is never ignored.
func parseArgs(req *mcp.CallToolRequest, dst any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params.Arguments))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("parsing tool arguments: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Server Instructions
// ---------------------------------------------------------------------------

const serverInstructions = `You are connected to scanguard, a gateway that runs network-security scanners on behalf of an agent inside an authorized lab.

## RULES ENFORCED BY THE GATEWAY

1. Targets must be a private IPv4/IPv6 address (RFC 1918, loopback, or a configured lab block), a CIDR range inside one such block no larger than the configured ceiling, or a hostname under the lab domain suffix. Anything else is rejected with VALIDATION_ERROR before any process starts.
2. The "arguments" string is split like a shell would split it, but shell metacharacters (; | & ` + "`" + ` $ < > newline) are rejected outright. Every flag must be on the tool's allow-list; some tools also require certain flags. Nothing is ever added on your behalf.
3. Any bare word in "arguments" that is not the value of a flag (see VALUE FLAGS in each tool description) is treated as an extra target and obeys the same rules as the target. Octet shorthand such as 10.0.0.1-254 is refused; pass a CIDR target instead.
4. Each tool has a fixed number of concurrent slots. Calls beyond that wait.
5. After repeated failures a tool's circuit opens and calls fail fast with CIRCUIT_OPEN until the cooldown passes; one trial call then decides whether it closes.

## WORKFLOW

1. list_tools: see each tool's allowed flags, required flags and timeout bounds.
2. tool_status: check breaker state and free slots before a long scan.
3. Call the scanner tool with {"target": "...", "arguments": "..."}.

## READING RESULTS

- error_kind is empty on success. Output may still be truncated (truncated_stdout / truncated_stderr); that is not a failure.
- TIMEOUT: the process was killed at its deadline (exit_code 124). Narrow the scan or raise timeout_seconds within max_timeout.
- NOT_FOUND: the scanner binary is not installed on the gateway host.
- CIRCUIT_OPEN: do not retry immediately; tool_status shows retry_after.
- RESOURCE_EXHAUSTED: argument string too long, or no slot became free before you gave up.`
