// Command mcp-smoke starts "scanguard mcp --http" from the repository and
// drives it through a real MCP client session, printing PASS/FAIL per
// scenario.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/scanguard/scanguard/pkg/defaults"
)

// scenarioResult tracks the outcome of a single scenario.
type scenarioResult struct {
	name   string
	passed bool
	err    error
}

// scenario is a named test function that runs against a live MCP session.
type scenario struct {
	name string
	live bool // spawns a real scanner (skipped without -live)
	fn   func(ctx context.Context, s *mcp.ClientSession, target string) error
}

func main() {
	var (
		port    = flag.Int("port", 18080, "MCP HTTP port")
		target  = flag.String("target", "127.0.0.1", "Authorized target for live scenarios")
		timeout = flag.Duration("timeout", 90*time.Second, "Overall timeout")
		live    = flag.Bool("live", false, "Enable live scenarios that run nmap against -target")
		runOnly = flag.String("scenario", "", "Run only this named scenario")
	)
	flag.Parse()
	log.SetFlags(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	serverCmd, err := startServer(ctx, *port)
	if err != nil {
		log.Fatalf("FATAL start_server: %v", err)
	}
	defer stopServer(serverCmd)

	if err := waitForHealth(ctx, *port); err != nil {
		log.Fatalf("FATAL health_check: %v", err)
	}
	fmt.Println("server: healthy")

	client := mcp.NewClient(&mcp.Implementation{Name: "mcp-smoke", Version: defaults.Version}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint: fmt.Sprintf("http://127.0.0.1:%d/mcp", *port),
	}, nil)
	if err != nil {
		log.Fatalf("FATAL connect: %v", err)
	}
	defer session.Close()

	var results []scenarioResult
	for _, sc := range allScenarios() {
		if *runOnly != "" && sc.name != *runOnly {
			continue
		}
		if sc.live && !*live {
			results = append(results, scenarioResult{name: sc.name, passed: true, err: fmt.Errorf("SKIP (needs -live)")})
			fmt.Printf("SKIP  %s\n", sc.name)
			continue
		}

		err := sc.fn(ctx, session, *target)
		passed := err == nil
		results = append(results, scenarioResult{name: sc.name, passed: passed, err: err})

		if passed {
			fmt.Printf("PASS  %s\n", sc.name)
		} else {
			fmt.Printf("FAIL  %s: %v\n", sc.name, err)
		}
	}

	passed, failed, skipped := 0, 0, 0
	for _, r := range results {
		if r.err != nil && strings.HasPrefix(r.err.Error(), "SKIP") {
			skipped++
		} else if r.passed {
			passed++
		} else {
			failed++
		}
	}

	fmt.Printf("\n--- %d passed, %d failed, %d skipped ---\n", passed, failed, skipped)
	if failed > 0 {
		os.Exit(1)
	}
}

// allScenarios returns every smoke scenario in execution order.
func allScenarios() []scenario {
	return []scenario{
		{"tool_discovery", false, scenarioToolDiscovery},
		{"resource_exploration", false, scenarioResourceExploration},
		{"prompt_catalog", false, scenarioPromptCatalog},
		{"target_rejection", false, scenarioTargetRejection},
		{"argument_rejection", false, scenarioArgumentRejection},
		{"gateway_status", false, scenarioGatewayStatus},

		{"host_discovery", true, scenarioHostDiscovery},
	}
}

// ---------------------------------------------------------------------------
// tool_discovery: one MCP tool per catalog entry plus the two built-ins.
// ---------------------------------------------------------------------------

func scenarioToolDiscovery(ctx context.Context, s *mcp.ClientSession, _ string) error {
	tools, err := s.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return fmt.Errorf("ListTools: %w", err)
	}

	version, err := s.ReadResource(ctx, &mcp.ReadResourceParams{URI: "scanguard://version"})
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	var info struct {
		Tools []string `json:"tools"`
	}
	if err := json.Unmarshal([]byte(resourceText(version)), &info); err != nil {
		return fmt.Errorf("parse version: %w", err)
	}

	have := make([]string, 0, len(tools.Tools))
	for _, t := range tools.Tools {
		have = append(have, t.Name)
		if t.Description == "" {
			return fmt.Errorf("tool %q has empty description", t.Name)
		}
		if t.InputSchema == nil {
			return fmt.Errorf("tool %q has nil input schema", t.Name)
		}
	}
	slices.Sort(have)
	want := slices.Clone(info.Tools)
	slices.Sort(want)
	if !slices.Equal(have, want) {
		return fmt.Errorf("tool list %v does not match version resource %v", have, want)
	}
	for _, builtin := range []string{"list_tools", "tool_status"} {
		if !slices.Contains(have, builtin) {
			return fmt.Errorf("missing built-in tool %q", builtin)
		}
	}

	fakeResult, err := callToolRaw(ctx, s, "nonexistent_tool_that_does_not_exist", map[string]any{})
	if err == nil && !fakeResult.IsError {
		return fmt.Errorf("NEG nonexistent tool: expected error, got success")
	}
	return nil
}

// ---------------------------------------------------------------------------
// resource_exploration: every resource parses; unknown URIs fail.
// ---------------------------------------------------------------------------

func scenarioResourceExploration(ctx context.Context, s *mcp.ClientSession, _ string) error {
	policyRes, err := s.ReadResource(ctx, &mcp.ReadResourceParams{URI: "scanguard://policy"})
	if err != nil {
		return fmt.Errorf("read policy: %w", err)
	}
	policy, err := resourceJSON(policyRes)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if nets, _ := policy["authorized_networks"].([]any); len(nets) == 0 {
		return fmt.Errorf("policy: no authorized networks")
	}
	if policy["octet_shorthand"] != "rejected" {
		return fmt.Errorf("policy: octet_shorthand = %v", policy["octet_shorthand"])
	}

	catalogRes, err := s.ReadResource(ctx, &mcp.ReadResourceParams{URI: "scanguard://catalog"})
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var entries []map[string]any
	if err := json.Unmarshal([]byte(resourceText(catalogRes)), &entries); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("catalog is empty")
	}
	for _, e := range entries {
		if flags, _ := e["allowed_flags"].([]any); len(flags) == 0 {
			return fmt.Errorf("catalog entry %v has no allowed flags", e["name"])
		}
	}

	if _, err := s.ReadResource(ctx, &mcp.ReadResourceParams{URI: "scanguard://nope"}); err == nil {
		return fmt.Errorf("NEG unknown resource: expected error")
	}
	return nil
}

// ---------------------------------------------------------------------------
// prompt_catalog: both workflows render; a missing argument fails.
// ---------------------------------------------------------------------------

func scenarioPromptCatalog(ctx context.Context, s *mcp.ClientSession, _ string) error {
	prompts, err := s.ListPrompts(ctx, &mcp.ListPromptsParams{})
	if err != nil {
		return fmt.Errorf("ListPrompts: %w", err)
	}
	if len(prompts.Prompts) != 2 {
		return fmt.Errorf("want 2 prompts, got %d", len(prompts.Prompts))
	}

	recon, err := s.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      "host_recon",
		Arguments: map[string]string{"target": "10.0.0.5", "ports": "22,80"},
	})
	if err != nil {
		return fmt.Errorf("host_recon: %w", err)
	}
	if text := promptText(recon); !strings.Contains(text, "-p 22,80") {
		return fmt.Errorf("host_recon ignores ports: %s", truncate(text, 120))
	}

	if _, err := s.GetPrompt(ctx, &mcp.GetPromptParams{Name: "range_sweep"}); err == nil {
		return fmt.Errorf("NEG range_sweep without range: expected error")
	}
	return nil
}

// ---------------------------------------------------------------------------
// target_rejection: out-of-scope targets never reach a scanner.
// ---------------------------------------------------------------------------

func scenarioTargetRejection(ctx context.Context, s *mcp.ClientSession, _ string) error {
	cases := map[string]string{
		"public address":  "8.8.8.8",
		"octet shorthand": "10.0.0.1-254",
		"foreign domain":  "example.com",
		"empty":           "",
	}
	for desc, target := range cases {
		if err := requireKind(ctx, s, "nmap", map[string]any{"target": target}, "VALIDATION_ERROR", desc); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// argument_rejection: metacharacters, unlisted flags and extra targets
// outside the lab are refused.
// ---------------------------------------------------------------------------

func scenarioArgumentRejection(ctx context.Context, s *mcp.ClientSession, _ string) error {
	cases := map[string]string{
		"semicolon":       "-sV; id",
		"pipe":            "-sV | nc 10.0.0.1 4444",
		"substitution":    "-p $(id)",
		"unlisted flag":   "-iL /etc/passwd",
		"nse script path": "--script=/tmp/x.nse",
		"public hostname": "-sV scanme.nmap.org",
		"decimal address": "-sV 134744072",
	}
	for desc, args := range cases {
		in := map[string]any{"target": "10.0.0.5", "arguments": args}
		if err := requireKind(ctx, s, "nmap", in, "VALIDATION_ERROR", desc); err != nil {
			return err
		}
	}

	long := map[string]any{"target": "10.0.0.5", "arguments": "-p " + strings.Repeat("1,", 5000) + "1"}
	result, err := callToolRaw(ctx, s, "nmap", long)
	if err == nil && !result.IsError {
		return fmt.Errorf("NEG oversized arguments: expected error")
	}
	return nil
}

// ---------------------------------------------------------------------------
// gateway_status: list_tools and tool_status agree with the catalog.
// ---------------------------------------------------------------------------

func scenarioGatewayStatus(ctx context.Context, s *mcp.ClientSession, _ string) error {
	listing, err := callToolJSON(ctx, s, "list_tools", map[string]any{})
	if err != nil {
		return err
	}
	count, _ := listing["count"].(float64)

	status, err := callToolJSON(ctx, s, "tool_status", map[string]any{})
	if err != nil {
		return err
	}
	views, _ := status["tools"].([]any)
	if len(views) != int(count) {
		return fmt.Errorf("tool_status lists %d tools, list_tools %v", len(views), count)
	}
	for _, v := range views {
		view, _ := v.(map[string]any)
		if view["state"] == "OPEN" {
			return fmt.Errorf("fresh server has an open circuit: %v", view["tool"])
		}
	}

	one, err := callToolJSON(ctx, s, "tool_status", map[string]any{"tool": "nmap"})
	if err != nil {
		return err
	}
	if views, _ := one["tools"].([]any); len(views) != 1 {
		return fmt.Errorf("tool_status(nmap) returned %d entries", len(views))
	}

	return requireToolError(ctx, s, "tool_status", map[string]any{"tool": "netcat"}, "unknown tool")
}

// ---------------------------------------------------------------------------
// host_discovery: runs nmap -sn against the target (needs nmap installed).
// ---------------------------------------------------------------------------

func scenarioHostDiscovery(ctx context.Context, s *mcp.ClientSession, target string) error {
	data, err := callToolJSON(ctx, s, "nmap", map[string]any{
		"target":          target,
		"arguments":       "-sn -n",
		"timeout_seconds": 60,
	})
	if err != nil {
		return err
	}
	result, _ := data["result"].(map[string]any)
	if out, _ := result["standard_output"].(string); !strings.Contains(out, "Nmap") {
		return fmt.Errorf("unexpected nmap output: %s", truncate(out, 120))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// requireKind calls a tool and asserts an error result of the given kind.
func requireKind(ctx context.Context, s *mcp.ClientSession, name string, args map[string]any, kind, desc string) error {
	result, err := callToolRaw(ctx, s, name, args)
	if err != nil {
		return fmt.Errorf("NEG %s(%s): %w", name, desc, err)
	}
	text := extractText(result)
	if !result.IsError {
		return fmt.Errorf("NEG %s(%s): expected IsError=true (response: %s)", name, desc, truncate(text, 120))
	}
	if !strings.Contains(text, kind) {
		return fmt.Errorf("NEG %s(%s): want %s, got %s", name, desc, kind, truncate(text, 120))
	}
	return nil
}

// requireToolError calls a tool and asserts it returns IsError=true.
func requireToolError(ctx context.Context, s *mcp.ClientSession, name string, args map[string]any, desc string) error {
	result, err := callToolRaw(ctx, s, name, args)
	if err != nil {
		// Protocol-level error is also acceptable for negative cases.
		return nil
	}
	if !result.IsError {
		return fmt.Errorf("NEG %s(%s): expected IsError=true, got false (response: %s)",
			name, desc, truncate(extractText(result), 120))
	}
	return nil
}

// callToolJSON calls a tool, asserts no error, and parses as JSON.
func callToolJSON(ctx context.Context, s *mcp.ClientSession, name string, args map[string]any) (map[string]any, error) {
	result, err := callToolRaw(ctx, s, name, args)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("call %s: tool error: %s", name, truncate(extractText(result), 200))
	}
	text := extractText(result)
	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("call %s: parse JSON: %w (text: %s)", name, err, truncate(text, 100))
	}
	return data, nil
}

func callToolRaw(ctx context.Context, s *mcp.ClientSession, name string, args map[string]any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal %s args: %w", name, err)
	}
	return s.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: json.RawMessage(payload)})
}

func extractText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if tc, ok := result.Content[0].(*mcp.TextContent); ok {
		return tc.Text
	}
	return fmt.Sprintf("%T", result.Content[0])
}

func resourceText(res *mcp.ReadResourceResult) string {
	if len(res.Contents) == 0 {
		return ""
	}
	return res.Contents[0].Text
}

func resourceJSON(res *mcp.ReadResourceResult) (map[string]any, error) {
	text := resourceText(res)
	if text == "" {
		return nil, fmt.Errorf("empty resource content")
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return data, nil
}

func promptText(result *mcp.GetPromptResult) string {
	data, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// ---------------------------------------------------------------------------
// Server lifecycle
// ---------------------------------------------------------------------------

func startServer(ctx context.Context, port int) (*exec.Cmd, error) {
	root, err := findRepoRoot()
	if err != nil {
		return nil, fmt.Errorf("find repo root: %w", err)
	}

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/scanguard", "mcp", "--http", fmt.Sprintf("127.0.0.1:%d", port))
	cmd.Dir = root
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func stopServer(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	_, _ = cmd.Process.Wait()
}

func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		modPath := dir + string(os.PathSeparator) + "go.mod"
		if data, err := os.ReadFile(modPath); err == nil {
			if strings.Contains(string(data), "module github.com/scanguard/scanguard\n") ||
				strings.Contains(string(data), "module github.com/scanguard/scanguard\r\n") {
				return dir, nil
			}
		}

		parent := dir[:max(strings.LastIndex(dir, string(os.PathSeparator)), 0)]
		if parent == dir || parent == "" {
			return "", fmt.Errorf("repo root not found walking up from %s", dir)
		}
		dir = parent
	}
}

const healthPollTimeout = 2 * time.Second

func waitForHealth(ctx context.Context, port int) error {
	client := &http.Client{Timeout: healthPollTimeout}
	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
