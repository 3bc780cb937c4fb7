package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/scanguard/scanguard/pkg/cli"
	"github.com/scanguard/scanguard/pkg/config"
	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/duration"
	"github.com/scanguard/scanguard/pkg/mcpserver"
	"github.com/scanguard/scanguard/pkg/ui"
)

// runMCP starts the MCP server.
// Supports two transport modes:
//   - --stdio (default): one client over stdin/stdout
//   - --http <addr>:     streamable HTTP with /health and /metrics
func runMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)

	stdio := fs.Bool("stdio", false, "Force the stdio transport even when an HTTP address is configured")
	httpAddr := fs.String("http", "", "HTTP address to listen on (e.g. :8080). Disables stdio.")
	common := addCommonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s mcp [flags]\n\n", defaults.ToolName)
		fmt.Fprintf(os.Stderr, "Serve the scanner catalog to an AI agent over MCP.\n\n")
		fmt.Fprintf(os.Stderr, "Transports:\n")
		fmt.Fprintf(os.Stderr, "  --stdio          Stdio transport (default)\n")
		fmt.Fprintf(os.Stderr, "  --http <addr>    Streamable HTTP transport with /health and /metrics\n\n")
		fmt.Fprintf(os.Stderr, "Environment variables:\n")
		fmt.Fprintf(os.Stderr, "  %-20s HTTP listen address (same as --http)\n", config.EnvHTTPAddr)
		fmt.Fprintf(os.Stderr, "  %-20s Configuration file (same as --config)\n\n", config.EnvConfig)
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s mcp\n", defaults.ToolName)
		fmt.Fprintf(os.Stderr, "  %s mcp --http :8080 --config /etc/scanguard.yaml\n\n", defaults.ToolName)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		exitWithError("%v", err)
	}

	cfg, err := common.load()
	if err != nil {
		exitWithError("configuration: %v", err)
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *stdio {
		cfg.Server.HTTPAddr = ""
	}

	logger := common.logger(cfg, os.Stderr)
	gw, err := buildGateway(cfg, logger, true)
	if err != nil {
		exitWithError("%v", err)
	}
	defer gw.close()

	srv, err := mcpserver.New(&mcpserver.Config{
		Executor: gw.exec,
		Metrics:  gw.metrics.Handler(),
		Logger:   logger,
	})
	if err != nil {
		exitWithError("%v", err)
	}
	gw.disp.RegisterHook(srv.Hook())

	ctx, cancel := cli.SignalContext(context.Background(), duration.ShutdownGrace, os.Stderr)
	defer cancel()

	fmt.Fprintf(os.Stderr, "%s serving %d tools\n", ui.UserAgent(), gw.exec.Catalog().Len())

	if cfg.Server.HTTPAddr != "" {
		if err := serveHTTP(ctx, srv, cfg.Server.HTTPAddr); err != nil {
			exitWithError("%v", err)
		}
		return
	}

	if cfg.Telemetry.MetricsAddr != "" {
		if err := gw.metrics.Serve(cfg.Telemetry.MetricsAddr); err != nil {
			exitWithError("%v", err)
		}
		fmt.Fprintf(os.Stderr, "%s metrics at %s\n", ui.UserAgent(), gw.metrics.MetricsAddr())
	}

	srv.MarkReady()
	if err := srv.RunStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
		exitWithError("%v", err)
	}
}

func serveHTTP(ctx context.Context, srv *mcpserver.Server, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.HTTPHandler(),
		ReadHeaderTimeout: duration.HTTPReadHeader,
		ReadTimeout:       duration.HTTPRead,
		// No WriteTimeout: a scan holds its response open until the tool
		// exits, up to the descriptor's max timeout.
		IdleTimeout:    duration.HTTPIdle,
		MaxHeaderBytes: defaults.MaxHeaderBytes,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), duration.ShutdownGrace)
		defer shutdownCancel()
		fmt.Fprintf(os.Stderr, "%s shutting down gracefully…\n", ui.UserAgent())
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "error during shutdown: %v\n", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "%s MCP server listening on %s (HTTP transport)\n", ui.UserAgent(), addr)
	srv.MarkReady()

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
