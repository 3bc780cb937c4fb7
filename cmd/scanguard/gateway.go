package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/scanguard/scanguard/pkg/cli"
	"github.com/scanguard/scanguard/pkg/config"
	"github.com/scanguard/scanguard/pkg/core"
	"github.com/scanguard/scanguard/pkg/output/dispatcher"
	"github.com/scanguard/scanguard/pkg/output/hooks"
	"github.com/scanguard/scanguard/pkg/output/writers"
	"github.com/scanguard/scanguard/pkg/runner"
	"github.com/scanguard/scanguard/pkg/target"
	"github.com/scanguard/scanguard/pkg/ui"
)

// commonFlags are accepted by every subcommand that loads configuration.
type commonFlags struct {
	config    *string
	logLevel  *string
	logFormat *string
	noColor   *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		config:    fs.String("config", "", "Configuration file (YAML); defaults to $"+config.EnvConfig),
		logLevel:  fs.String("log-level", "", "Log level: debug, info, warn, error"),
		logFormat: fs.String("log-format", "", "Log format: auto, text, json"),
		noColor:   fs.Bool("no-color", false, "Disable colored output"),
	}
}

// load reads the configuration and applies the flag overrides on top.
func (c *commonFlags) load() (*config.Config, error) {
	if *c.noColor || os.Getenv("NO_COLOR") != "" {
		ui.SetNoColor(true)
	}
	cfg, err := config.Load(*c.config)
	if err != nil {
		return nil, err
	}
	if *c.logLevel != "" {
		cfg.Server.LogLevel = *c.logLevel
	}
	if *c.logFormat != "" {
		cfg.Server.LogFormat = *c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *commonFlags) logger(cfg *config.Config, w io.Writer) *slog.Logger {
	return cli.NewLogger(w, cfg.Level(), cfg.Server.LogFormat)
}

// gateway is the assembled executor with its event consumers.
type gateway struct {
	exec    *core.Executor
	disp    *dispatcher.Dispatcher
	metrics *hooks.PrometheusHook
	logger  *slog.Logger
	closers []func() error
}

// buildGateway assembles catalog, validator, runner and executor, and
// registers the event consumers the configuration enables. withMetrics
// controls the Prometheus hook, which one-shot commands do not need.
func buildGateway(cfg *config.Config, logger *slog.Logger, withMetrics bool) (*gateway, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	validator, err := target.New(cfg.TargetConfig())
	if err != nil {
		return nil, err
	}

	g := &gateway{
		disp:   dispatcher.New(dispatcher.Config{Async: true, Logger: logger}),
		logger: logger,
	}
	g.disp.RegisterHook(hooks.NewLogHook(logger))

	tel := cfg.Telemetry
	if tel.EventLog != "" {
		f, err := os.OpenFile(filepath.Clean(tel.EventLog), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			g.close()
			return nil, fmt.Errorf("opening event log: %w", err)
		}
		g.disp.RegisterWriter(writers.NewJSONLWriter(f, writers.JSONLOptions{}))
	}

	g.exec = core.NewExecutor(catalog, validator,
		core.WithLogger(logger),
		core.WithRunner(runner.New(runner.WithBinDirs(cfg.Limits.BinDirs...), runner.WithLogger(logger))),
		core.WithDispatcher(g.disp),
	)

	if withMetrics {
		prom, err := hooks.NewPrometheusHook(hooks.PrometheusOptions{
			Gates:  g.gateUsage,
			Logger: logger,
		})
		if err != nil {
			g.close()
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		prom.Track(catalog.Names()...)
		g.disp.RegisterHook(prom)
		g.metrics = prom
		g.closers = append(g.closers, prom.Close)
	}

	if tel.OTLPEndpoint != "" {
		otel, err := hooks.NewOTelHook(hooks.OTelOptions{
			Endpoint: tel.OTLPEndpoint,
			Insecure: tel.OTLPInsecure,
			Headers:  tel.OTLPHeaders,
		})
		if err != nil {
			g.close()
			return nil, fmt.Errorf("starting trace exporter: %w", err)
		}
		g.disp.RegisterHook(otel)
		g.closers = append(g.closers, otel.Close)
	}

	if tel.WebhookURL != "" {
		g.disp.RegisterHook(hooks.NewWebhookHook(tel.WebhookURL, hooks.WebhookOptions{
			Headers:            tel.WebhookHeaders,
			IncludeInvocations: tel.WebhookInvocations,
			Logger:             logger,
		}))
	}

	return g, nil
}

func (g *gateway) gateUsage() map[string]hooks.GateUsage {
	out := make(map[string]hooks.GateUsage)
	for _, st := range g.exec.Status() {
		out[st.Tool] = hooks.GateUsage{InFlight: st.InFlight, Capacity: st.Capacity}
	}
	return out
}

// close stops the executor, drains pending events, then shuts the
// consumers down in reverse order of creation.
func (g *gateway) close() error {
	if g.exec != nil {
		g.exec.Close()
	}
	errs := []error{g.disp.Close()}
	for i := len(g.closers) - 1; i >= 0; i-- {
		errs = append(errs, g.closers[i]())
	}
	err := errors.Join(errs...)
	if err != nil {
		g.logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
	return err
}
