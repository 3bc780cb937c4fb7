// Package config loads the scanguard configuration: global limits, server
// and telemetry settings, and the tool catalog. It is read once at start-up
// and never changes afterwards.
//
// Precedence, lowest first: built-in defaults, the YAML file, SCANGUARD_*
// environment variables, then CLI flags applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/iohelper"
	"github.com/scanguard/scanguard/pkg/target"
	"github.com/scanguard/scanguard/pkg/tool"
)

// Environment variables read by Load.
const (
	EnvConfig    = "SCANGUARD_CONFIG"
	EnvHTTPAddr  = "SCANGUARD_HTTP_ADDR"
	EnvLogLevel  = "SCANGUARD_LOG_LEVEL"
	EnvBinDirs   = "SCANGUARD_BIN_DIRS"
	EnvLabSuffix = "SCANGUARD_LAB_SUFFIX"
)

// Config is the whole configuration document.
type Config struct {
	Limits    Limits    `yaml:"limits"`
	Server    Server    `yaml:"server"`
	Telemetry Telemetry `yaml:"telemetry"`

	// Tools replaces built-in descriptors of the same name and adds the
	// rest.
	Tools []tool.Descriptor `yaml:"tools"`

	// Disable removes tools from the catalog by name.
	Disable []string `yaml:"disable"`

	// BuiltinOff starts the catalog empty instead of from the built-in set.
	BuiltinOff bool `yaml:"builtin_off"`
}

// Limits are the process-wide validation and execution limits.
type Limits struct {
	MaxRangeAddresses uint64   `yaml:"max_range_addresses"`
	LabSuffix         string   `yaml:"lab_suffix"`
	ExtraNetworks     []string `yaml:"extra_networks"`
	BinDirs           []string `yaml:"bin_dirs"`
}

// Server configures the MCP front end.
type Server struct {
	// HTTPAddr enables the streamable HTTP transport; empty means stdio.
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Telemetry configures the event consumers. Every consumer is off unless
// its address is set.
type Telemetry struct {
	// MetricsAddr serves /metrics standalone when there is no HTTP
	// transport to mount it on.
	MetricsAddr string `yaml:"metrics_addr"`

	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	OTLPInsecure bool              `yaml:"otlp_insecure"`
	OTLPHeaders  map[string]string `yaml:"otlp_headers"`

	WebhookURL         string            `yaml:"webhook_url"`
	WebhookHeaders     map[string]string `yaml:"webhook_headers"`
	WebhookInvocations bool              `yaml:"webhook_invocations"`

	// EventLog appends every event as one JSON line.
	EventLog string `yaml:"event_log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Limits: Limits{
			MaxRangeAddresses: defaults.MaxRangeAddresses,
			LabSuffix:         defaults.LabDomainSuffix,
			BinDirs:           append([]string(nil), defaults.BinDirs...),
		},
		Server: Server{
			LogLevel:  "info",
			LogFormat: "auto",
		},
	}
}

// Load reads the file at path, or at $SCANGUARD_CONFIG when path is empty,
// applies environment overrides and validates the result. With neither set
// it returns the defaults with overrides applied.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	cfg := Default()
	if path != "" {
		data, err := iohelper.ReadFileLimited(filepath.Clean(path), defaults.MaxConfigBytes)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates it. Environment
// overrides are not applied.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvHTTPAddr); ok && v != "" {
		c.Server.HTTPAddr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Server.LogLevel = v
	}
	if v, ok := lookup(EnvLabSuffix); ok && v != "" {
		c.Limits.LabSuffix = v
	}
	if v, ok := lookup(EnvBinDirs); ok && v != "" {
		c.Limits.BinDirs = filepath.SplitList(v)
	}
}

// Validate checks every section. All errors wrap ErrInvalidConfig,
// ErrMissingRequired or ErrUnknownTool.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Server.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.Server.LogFormat) {
	case "", "auto", "json", "text":
	default:
		return fmt.Errorf("%w: server.log_format %q (want auto, json or text)", ErrInvalidConfig, c.Server.LogFormat)
	}

	if c.Limits.MaxRangeAddresses == 0 {
		return fmt.Errorf("%w: limits.max_range_addresses must be positive", ErrInvalidConfig)
	}
	if strings.Trim(c.Limits.LabSuffix, ".") == "" {
		return fmt.Errorf("%w: limits.lab_suffix", ErrMissingRequired)
	}
	for _, n := range c.Limits.ExtraNetworks {
		if _, err := netip.ParsePrefix(n); err != nil {
			return fmt.Errorf("%w: limits.extra_networks: %v", ErrInvalidConfig, err)
		}
	}
	if len(c.Limits.BinDirs) == 0 {
		return fmt.Errorf("%w: limits.bin_dirs", ErrMissingRequired)
	}
	for _, d := range c.Limits.BinDirs {
		if !filepath.IsAbs(d) {
			return fmt.Errorf("%w: limits.bin_dirs: %q is not absolute", ErrInvalidConfig, d)
		}
	}

	if _, err := c.Descriptors(); err != nil {
		return err
	}
	if _, err := target.New(c.TargetConfig()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Descriptors merges the built-in catalog with the tools section and
// removes disabled tools. Each descriptor has its defaults applied.
func (c *Config) Descriptors() ([]tool.Descriptor, error) {
	var base []tool.Descriptor
	if !c.BuiltinOff {
		base = tool.Builtin()
	}

	index := make(map[string]int, len(base))
	for i, d := range base {
		index[d.Name] = i
	}

	seen := make(map[string]bool, len(c.Tools))
	for _, d := range c.Tools {
		if seen[d.Name] {
			return nil, fmt.Errorf("%w: tool %q declared twice", ErrInvalidConfig, d.Name)
		}
		seen[d.Name] = true
		if i, ok := index[d.Name]; ok {
			base[i] = d
			continue
		}
		index[d.Name] = len(base)
		base = append(base, d)
	}

	drop := make(map[string]bool, len(c.Disable))
	for _, name := range c.Disable {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: disable: %q", ErrUnknownTool, name)
		}
		drop[name] = true
	}

	out := make([]tool.Descriptor, 0, len(base))
	for _, d := range base {
		if drop[d.Name] {
			continue
		}
		d = d.WithDefaults()
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if d.Concurrency > defaults.ConcurrencyMax {
			return nil, fmt.Errorf("%w: %s: concurrency %d exceeds %d", ErrInvalidConfig, d.Name, d.Concurrency, defaults.ConcurrencyMax)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no tools enabled", ErrMissingRequired)
	}
	return out, nil
}

// Catalog builds the tool catalog.
func (c *Config) Catalog() (*tool.Catalog, error) {
	descs, err := c.Descriptors()
	if err != nil {
		return nil, err
	}
	return tool.NewCatalog(descs...)
}

// TargetConfig returns the target validator settings.
func (c *Config) TargetConfig() target.Config {
	return target.Config{
		ExtraNetworks:     c.Limits.ExtraNetworks,
		LabSuffix:         c.Limits.LabSuffix,
		MaxRangeAddresses: c.Limits.MaxRangeAddresses,
	}
}

// Level returns the configured log level. Validate has already rejected
// unknown names.
func (c *Config) Level() slog.Level {
	l, _ := ParseLevel(c.Server.LogLevel)
	return l
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log level %q", ErrInvalidConfig, s)
	}
	return l, nil
}
