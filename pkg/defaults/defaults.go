// Package defaults provides canonical default values for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all runtime configuration defaults.
//
// Usage:
//
//	desc.Concurrency = defaults.ConcurrencyMinimal
//	validator := target.New(target.Config{MaxRangeAddresses: defaults.MaxRangeAddresses})
//
// DO NOT use hardcoded values like `Concurrency: 1` anywhere.
// Instead, reference the appropriate constant from this package.
package defaults

import "fmt"

// Version is the current scanguard version
const Version = "0.4.0"

// ToolName is the canonical binary and service name
const ToolName = "scanguard"

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================
//
// Scans are expensive, so per-tool gates default to a single slot.
// ============================================================================

const (
	// ConcurrencyMinimal is the default gate capacity (1)
	ConcurrencyMinimal = 1

	// ConcurrencyLow is for light, short-lived tools (2)
	ConcurrencyLow = 2

	// ConcurrencyMax is the largest capacity configuration may request (16)
	ConcurrencyMax = 16
)

// ============================================================================
// CIRCUIT BREAKER
// ============================================================================

const (
	// BreakerFailureThreshold is consecutive failures before OPEN (5)
	BreakerFailureThreshold = 5

	// BreakerFailureThresholdStrict is for tools that lock out accounts (3)
	BreakerFailureThresholdStrict = 3
)

// ============================================================================
// ALERT DELIVERY
// ============================================================================

const (
	// RetryMedium is the delivery attempts for breaker alerts (3)
	RetryMedium = 3
)

// ============================================================================
// INPUT / OUTPUT CEILINGS
// ============================================================================

const (
	// MaxArgLength is the longest accepted raw argument string in bytes (4KB)
	MaxArgLength = 4 * 1024

	// MaxOutputBytes is the per-stream capture ceiling (1MB)
	MaxOutputBytes = 1024 * 1024

	// MaxRangeAddresses is the largest CIDR range a single scan may cover (1024)
	MaxRangeAddresses = 1024

	// MaxConfigBytes caps the configuration file read (1MB)
	MaxConfigBytes = 1024 * 1024
)

// ============================================================================
// TARGET AUTHORIZATION
// ============================================================================

// LabDomainSuffix is the reserved internal-lab suffix a bare hostname must
// carry to be scannable.
const LabDomainSuffix = ".lab.internal"

// PrivateBlocks are the address blocks treated as authorized by default:
// RFC 1918 plus IPv4 loopback.
var PrivateBlocks = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
}

// BinDirs are the only directories searched for tool binaries.
var BinDirs = []string{
	"/usr/local/bin",
	"/usr/bin",
	"/usr/local/sbin",
	"/usr/sbin",
	"/bin",
}

// ============================================================================
// SYNTHETIC EXIT CODES
// ============================================================================

const (
	// ExitCodeTimeout is reported when the process was killed at its deadline
	ExitCodeTimeout = 124

	// ExitCodeNotFound is reported when the binary could not be resolved
	ExitCodeNotFound = 127

	// ExitCodeUnknown is reported when no process exit status exists
	ExitCodeUnknown = -1
)

// ============================================================================
// SERVER
// ============================================================================

const (
	// MetricsPath is where Prometheus metrics are mounted
	MetricsPath = "/metrics"

	// HealthPath is the readiness/liveness probe path
	HealthPath = "/health"

	// MaxHeaderBytes caps request headers on the HTTP transport (1MB)
	MaxHeaderBytes = 1 << 20

	// OTLPEndpoint is the default collector address
	OTLPEndpoint = "localhost:4317"
)

// UserAgent returns the implementation identifier reported to MCP clients
func UserAgent(context string) string {
	if context == "" {
		return ToolName + "/" + Version
	}
	return fmt.Sprintf("%s/%s (%s)", ToolName, Version, context)
}
