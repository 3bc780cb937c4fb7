package tool

import (
	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/duration"
)

// Builtin returns the descriptors shipped with scanguard. Configuration
// may replace any of them by name.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			Name:        "nmap",
			Binary:      "nmap",
			Description: "Network mapper: host discovery, port state, service and OS detection.",
			AllowedFlags: []string{
				"-sS", "-sT", "-sU", "-sV", "-sC", "-sn", "-Pn", "-O", "-A",
				"-p", "-F", "-T", "--top-ports", "--open", "--reason",
				"--version-intensity", "--max-retries",
				"--host-timeout", "--min-rate", "--max-rate", "-v", "-n",
			},
			ValueFlags: []string{
				"-p", "-T", "--top-ports", "--version-intensity", "--max-retries",
				"--host-timeout", "--min-rate", "--max-rate",
			},
			AllowRanges:    true,
			DefaultTimeout: duration.ToolStandard,
			Concurrency:    defaults.ConcurrencyMinimal,
		},
		{
			Name:        "masscan",
			Binary:      "masscan",
			Description: "Asynchronous TCP port scanner for large address blocks.",
			AllowedFlags: []string{
				"-p", "--ports", "--rate", "--banners", "--wait", "--retries",
				"--open", "--open-only", "--max-rate",
			},
			RequiredFlags:     [][]string{{"-p", "--ports"}},
			ValueFlags:        []string{"-p", "--ports", "--rate", "--wait", "--retries", "--max-rate"},
			AllowRanges:       true,
			DefaultTimeout:    duration.ToolStandard,
			Concurrency:       defaults.ConcurrencyMinimal,
			LaunchesPerMinute: 6,
		},
		{
			Name:        "gobuster",
			Binary:      "gobuster",
			Description: "Content discoverer: brute-forces paths on an HTTP service.",
			AllowedFlags: []string{
				"-w", "--wordlist", "-t", "--threads", "-x", "--extensions",
				"-s", "--status-codes", "-b", "--status-codes-blacklist",
				"-k", "--no-tls-validation", "-q", "--quiet", "--timeout",
				"--delay", "-r", "--follow-redirect", "--no-error", "-z", "--no-progress",
			},
			ValueFlags: []string{
				"-w", "--wordlist", "-t", "--threads", "-x", "--extensions",
				"-s", "--status-codes", "-b", "--status-codes-blacklist",
				"--timeout", "--delay",
			},
			RequiredFlags:  [][]string{{"-w", "--wordlist"}},
			LeadingArgs:    []string{"dir"},
			TargetArgs:     []string{"-u", "http://" + TargetPlaceholder},
			DefaultTimeout: duration.ToolDiscovery,
			Concurrency:    defaults.ConcurrencyLow,
		},
		{
			Name:        "hydra_ssh",
			Binary:      "hydra",
			Description: "Credential tester against an SSH login service.",
			AllowedFlags: []string{
				"-l", "-L", "-p", "-P", "-C", "-s", "-t", "-f", "-F",
				"-e", "-u", "-w", "-W", "-V", "-v", "-I",
			},
			RequiredFlags: [][]string{
				{"-l", "-L", "-C"},
				{"-p", "-P", "-C", "-e"},
			},
			ValueFlags:       []string{"-l", "-L", "-P", "-C", "-s", "-t", "-e", "-w", "-W"},
			TargetArgs:       []string{"ssh://" + TargetPlaceholder},
			SecretFlags:      []string{"-p"},
			DefaultTimeout:   duration.ToolLong,
			Concurrency:      defaults.ConcurrencyMinimal,
			FailureThreshold: defaults.BreakerFailureThresholdStrict,
		},
		{
			Name:        "sqlmap",
			Binary:      "sqlmap",
			Description: "Injection tester for SQL injection in HTTP parameters.",
			AllowedFlags: []string{
				"--batch", "--level", "--risk", "-p", "--data", "--cookie",
				"--technique", "--dbms", "--threads", "--timeout", "--retries",
				"--random-agent", "--flush-session", "--forms", "--crawl", "-v",
			},
			ValueFlags: []string{
				"--level", "--risk", "-p", "--technique", "--dbms", "--threads",
				"--timeout", "--retries", "--crawl", "-v",
			},
			RequiredFlags:  [][]string{{"--batch"}},
			SecretFlags:    []string{"--cookie", "--data"},
			TargetArgs:     []string{"-u", "http://" + TargetPlaceholder + "/"},
			DefaultTimeout: duration.ToolLong,
			Concurrency:    defaults.ConcurrencyMinimal,
		},
	}
}
