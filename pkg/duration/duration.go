// Package duration provides canonical time constants for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all time-based configuration.
//
// Usage:
//
//	DefaultTimeout: duration.ToolDefault,
//	RecoveryTimeout: duration.BreakerRecovery,
//	ctx, cancel := context.WithTimeout(ctx, duration.ShutdownGrace)
//
// DO NOT use hardcoded time.Duration values like `30 * time.Second` anywhere.
// Instead, reference the appropriate constant from this package.
package duration

import "time"

// ============================================================================
// TOOL EXECUTION TIMEOUTS
// ============================================================================
//
// Wall-clock budgets for one external tool process. Descriptors pick one of
// these; requests may lower or raise it up to the descriptor's maximum.
// ============================================================================

const (
	// ToolQuick is for single-host probes (2min)
	ToolQuick = 2 * time.Minute

	// ToolDefault is the fallback when a descriptor sets none (5min)
	ToolDefault = 5 * time.Minute

	// ToolStandard is for service detection and port sweeps (10min)
	ToolStandard = 10 * time.Minute

	// ToolDiscovery is for content discovery against one HTTP service (15min)
	ToolDiscovery = 15 * time.Minute

	// ToolLong is for credential and injection testing (20min)
	ToolLong = 20 * time.Minute

	// ToolMax is the hard ceiling for any single invocation (30min)
	ToolMax = 30 * time.Minute
)

// ============================================================================
// PROCESS TERMINATION
// ============================================================================
//
// After a deadline the process group receives SIGTERM; if it is still alive
// after KillGrace it receives SIGKILL. PipeDrain bounds how long Wait may
// block on pipes held open by orphaned grandchildren.
// ============================================================================

const (
	// KillGrace is the delay between SIGTERM and SIGKILL (3s)
	KillGrace = 3 * time.Second

	// PipeDrain bounds output copying after the process exits (2s)
	PipeDrain = 2 * time.Second
)

// ============================================================================
// CIRCUIT BREAKER
// ============================================================================

const (
	// BreakerRecovery is the OPEN -> HALF_OPEN cooldown (1min)
	BreakerRecovery = 1 * time.Minute

	// BreakerRecoveryShort is for tools that fail fast and recover fast (15s)
	BreakerRecoveryShort = 15 * time.Second
)

// ============================================================================
// SERVER / TELEMETRY
// ============================================================================
//
// Use these for the MCP HTTP transport and exporters.
// ============================================================================

const (
	// HTTPReadHeader protects against slowloris (10s)
	HTTPReadHeader = 10 * time.Second

	// HTTPRead bounds a full request read (30s)
	HTTPRead = 30 * time.Second

	// HTTPIdle releases idle keep-alive connections (30s)
	HTTPIdle = 30 * time.Second

	// ShutdownGrace drains in-flight requests on shutdown (15s)
	ShutdownGrace = 15 * time.Second

	// ExporterConnect is for establishing the OTLP connection (10s)
	ExporterConnect = 10 * time.Second

	// ExporterShutdown is for flushing spans on close (5s)
	ExporterShutdown = 5 * time.Second

	// MetricsWrite is the write timeout of the standalone metrics server (10s)
	MetricsWrite = 10 * time.Second

	// MetricsRead is the read timeout of the standalone metrics server (5s)
	MetricsRead = 5 * time.Second

	// WebhookTimeout bounds one alert delivery attempt (10s)
	WebhookTimeout = 10 * time.Second

	// WebhookBackoff is the first retry delay for alert delivery, doubled per attempt (1s)
	WebhookBackoff = 1 * time.Second

	// SignalGrace is how long a second interrupt is awaited before forcing exit (30s)
	SignalGrace = 30 * time.Second
)
