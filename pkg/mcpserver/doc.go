// Package mcpserver exposes the scanguard executor as a Model Context
// Protocol (MCP) server so an AI agent can run network scanners inside an
// authorized lab.
//
// # Architecture
//
// The server is built on the official MCP Go SDK and exposes:
//
//   - Tools:     one per catalog entry (nmap, masscan, ...) plus list_tools and tool_status
//   - Resources: version, catalog and target policy documents
//   - Prompts:   host_recon and range_sweep workflows
//
// Every scanner call goes through core.Executor, which validates the target
// and arguments, takes a concurrency slot, consults the tool's circuit
// breaker and only then spawns the process. The handler wraps the result in
// a JSON envelope with a summary and next steps; failures set IsError so the
// agent can self-correct.
//
// # Transports
//
//   - stdio: one client over stdin/stdout (default). Used by IDE integrations.
//   - HTTP:  streamable HTTP on /mcp, with /health and optionally /metrics.
//
// # Usage
//
//	srv, err := mcpserver.New(&mcpserver.Config{Executor: exec})
//	if err != nil { ... }
//	disp.RegisterHook(srv.Hook())
//	srv.MarkReady()
//	err = srv.RunStdio(ctx)
package mcpserver
