package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerPrompts adds the guided workflows.
func (s *Server) registerPrompts() {
	s.addHostReconPrompt()
	s.addRangeSweepPrompt()
}

// ═══════════════════════════════════════════════════════════════════════════
// host_recon: single host, ports then services
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addHostReconPrompt() {
	s.mcp.AddPrompt(
		&mcp.Prompt{
			Name:        "host_recon",
			Description: "Step-by-step reconnaissance of one lab host: open ports, then service versions, then targeted follow-up.",
			Arguments: []*mcp.PromptArgument{
				{Name: "target", Description: "Private address or lab hostname (e.g. 10.0.0.5 or web01.lab.internal)", Required: true},
				{Name: "ports", Description: "Port list to focus on, e.g. '22,80,443'. Defaults to the top 1000.", Required: false},
			},
		},
		func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			target := req.Params.Arguments["target"]
			if target == "" {
				return nil, fmt.Errorf("'target' argument is required")
			}
			portArg := "--top-ports 1000"
			if p := req.Params.Arguments["ports"]; p != "" {
				portArg = "-p " + p
			}

			return &mcp.GetPromptResult{
				Description: fmt.Sprintf("Host reconnaissance: %s", target),
				Messages: []*mcp.PromptMessage{
					{
						Role: "user",
						Content: &mcp.TextContent{
							Text: fmt.Sprintf(`Map the services on %s. Available scanners: %s.

## Step 1: Check the gateway
Call tool_status. If a scanner you need is OPEN, wait for retry_after_seconds instead of calling it.

## Step 2: Port discovery
Call nmap with {"target": %q, "arguments": "-Pn -T4 %s --open"}.

## Step 3: Service detection
For the open ports found, call nmap with "-sV -p <ports>" on the same target.

## Step 4: Follow-up
- HTTP services: call gobuster with a wordlist (-w is required).
- SSH: only call hydra_ssh when credentials testing is explicitly in scope.

## Step 5: Report
List each open port with its service and version, then anything a follow-up tool found. Quote correlation_id for every call so the run can be audited.`,
								target, strings.Join(s.exec.Catalog().Names(), ", "), target, portArg),
						},
					},
				},
			}, nil
		},
	)
}

// ═══════════════════════════════════════════════════════════════════════════
// range_sweep: host discovery over a CIDR block
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addRangeSweepPrompt() {
	s.mcp.AddPrompt(
		&mcp.Prompt{
			Name:        "range_sweep",
			Description: "Find live hosts in a lab CIDR block, then hand each one to host_recon.",
			Arguments: []*mcp.PromptArgument{
				{Name: "range", Description: "CIDR block inside one authorized network, e.g. 10.0.0.0/24", Required: true},
			},
		},
		func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			cidr := req.Params.Arguments["range"]
			if cidr == "" {
				return nil, fmt.Errorf("'range' argument is required")
			}
			v := s.exec.Validator()

			return &mcp.GetPromptResult{
				Description: fmt.Sprintf("Range sweep: %s", cidr),
				Messages: []*mcp.PromptMessage{
					{
						Role: "user",
						Content: &mcp.TextContent{
							Text: fmt.Sprintf(`Find the live hosts in %s.

The gateway accepts ranges of at most %d addresses, and only inside one authorized block. Split larger blocks yourself. Octet shorthand like 10.0.0.1-254 is refused.

1. Call nmap with {"target": %q, "arguments": "-sn -n"}.
2. If the tool times out, split the range in half and repeat.
3. For each live host, follow the host_recon workflow.
4. Summarize: live host count, then one line per host.`,
								cidr, v.MaxRangeAddresses(), cidr),
						},
					},
				},
			}, nil
		},
	)
}
