package tool

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/duration"
)

// TargetPlaceholder is replaced by the validated target in TargetArgs.
const TargetPlaceholder = "{target}"

var (
	// ErrInvalidDescriptor is wrapped by every Descriptor.Validate failure.
	ErrInvalidDescriptor = errors.New("tool: invalid descriptor")

	// ErrDuplicateTool is returned when two descriptors share a name.
	ErrDuplicateTool = errors.New("tool: duplicate tool name")
)

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Descriptor is the fixed capability set of one external tool. It is
// registered once and consumed read-only.
type Descriptor struct {
	Name        string `yaml:"name" json:"name"`
	Binary      string `yaml:"binary" json:"binary"`
	Description string `yaml:"description" json:"description"`

	// AllowedFlags are matched by prefix against every token starting
	// with '-'.
	AllowedFlags []string `yaml:"allowed_flags" json:"allowed_flags"`

	// RequiredFlags lists groups of alternatives; each group must be
	// matched by at least one token. Missing groups are rejected, never
	// filled in.
	RequiredFlags [][]string `yaml:"required_flags,omitempty" json:"required_flags,omitempty"`

	// LeadingArgs is a fixed prefix such as a mode subcommand. It is part
	// of the tool identity and never derived from the request.
	LeadingArgs []string `yaml:"leading_args,omitempty" json:"leading_args,omitempty"`

	// TargetArgs is appended after the sanitized arguments with
	// TargetPlaceholder substituted.
	TargetArgs []string `yaml:"target_args,omitempty" json:"target_args,omitempty"`

	// ValueFlags are flags whose value follows as the next token, as in
	// "-p 22". A positional token not consumed by one of these, or by a
	// secret flag, is checked as a target.
	ValueFlags []string `yaml:"value_flags,omitempty" json:"value_flags,omitempty"`

	// AllowRanges permits CIDR targets.
	AllowRanges bool `yaml:"allow_ranges" json:"allow_ranges"`

	SuccessExitCodes []int `yaml:"success_exit_codes,omitempty" json:"success_exit_codes,omitempty"`

	DefaultTimeout    time.Duration `yaml:"default_timeout" json:"default_timeout"`
	MaxTimeout        time.Duration `yaml:"max_timeout" json:"max_timeout"`
	Concurrency       int           `yaml:"concurrency" json:"concurrency"`
	LaunchesPerMinute int           `yaml:"launches_per_minute,omitempty" json:"launches_per_minute,omitempty"`
	FailureThreshold  int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout   time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	MaxArgLength      int           `yaml:"max_arg_length" json:"max_arg_length"`
	MaxOutputBytes    int           `yaml:"max_output_bytes" json:"max_output_bytes"`

	EnvPassthrough []string `yaml:"env_passthrough,omitempty" json:"env_passthrough,omitempty"`

	// SecretFlags take credential values that are masked in logs.
	SecretFlags []string `yaml:"secret_flags,omitempty" json:"secret_flags,omitempty"`
}

// WithDefaults returns a copy of d with every zero-valued limit replaced by
// the package defaults.
func (d Descriptor) WithDefaults() Descriptor {
	if d.Binary == "" {
		d.Binary = d.Name
	}
	if len(d.TargetArgs) == 0 {
		d.TargetArgs = []string{TargetPlaceholder}
	}
	if len(d.SuccessExitCodes) == 0 {
		d.SuccessExitCodes = []int{0}
	}
	if d.DefaultTimeout <= 0 {
		d.DefaultTimeout = duration.ToolDefault
	}
	if d.MaxTimeout <= 0 {
		d.MaxTimeout = duration.ToolMax
	}
	if d.Concurrency <= 0 {
		d.Concurrency = defaults.ConcurrencyMinimal
	}
	if d.FailureThreshold <= 0 {
		d.FailureThreshold = defaults.BreakerFailureThreshold
	}
	if d.RecoveryTimeout <= 0 {
		d.RecoveryTimeout = duration.BreakerRecovery
	}
	if d.MaxArgLength <= 0 {
		d.MaxArgLength = defaults.MaxArgLength
	}
	if d.MaxOutputBytes <= 0 {
		d.MaxOutputBytes = defaults.MaxOutputBytes
	}
	return d
}

// Validate checks the descriptor after defaults have been applied.
func (d Descriptor) Validate() error {
	switch {
	case !nameRe.MatchString(d.Name):
		return fmt.Errorf("%w: name %q must match %s", ErrInvalidDescriptor, d.Name, nameRe)
	case d.Binary == "" || strings.ContainsAny(d.Binary, `/\`):
		return fmt.Errorf("%w: %s: binary %q must be a bare executable name", ErrInvalidDescriptor, d.Name, d.Binary)
	case len(d.AllowedFlags) == 0:
		return fmt.Errorf("%w: %s: allowed_flags is empty", ErrInvalidDescriptor, d.Name)
	case d.DefaultTimeout > d.MaxTimeout:
		return fmt.Errorf("%w: %s: default_timeout %s exceeds max_timeout %s", ErrInvalidDescriptor, d.Name, d.DefaultTimeout, d.MaxTimeout)
	case d.LaunchesPerMinute < 0:
		return fmt.Errorf("%w: %s: launches_per_minute must not be negative", ErrInvalidDescriptor, d.Name)
	}
	for _, f := range d.AllowedFlags {
		if !strings.HasPrefix(f, "-") || strings.TrimLeft(f, "-") == "" {
			return fmt.Errorf("%w: %s: allowed flag %q is not flag-shaped", ErrInvalidDescriptor, d.Name, f)
		}
	}
	for _, f := range d.ValueFlags {
		if !strings.HasPrefix(f, "-") || strings.TrimLeft(f, "-") == "" {
			return fmt.Errorf("%w: %s: value flag %q is not flag-shaped", ErrInvalidDescriptor, d.Name, f)
		}
	}
	for i, group := range d.RequiredFlags {
		if len(group) == 0 {
			return fmt.Errorf("%w: %s: required_flags group %d is empty", ErrInvalidDescriptor, d.Name, i)
		}
	}
	placed := false
	for _, a := range d.TargetArgs {
		if strings.Contains(a, TargetPlaceholder) {
			placed = true
		}
	}
	if !placed {
		return fmt.Errorf("%w: %s: target_args has no %s placeholder", ErrInvalidDescriptor, d.Name, TargetPlaceholder)
	}
	return nil
}

// Argv returns the leading arguments, the sanitized arguments and the
// target arguments, in that order.
func (d Descriptor) Argv(args []string, target string) []string {
	argv := make([]string, 0, len(d.LeadingArgs)+len(args)+len(d.TargetArgs))
	argv = append(argv, d.LeadingArgs...)
	argv = append(argv, args...)
	for _, a := range d.TargetArgs {
		argv = append(argv, strings.ReplaceAll(a, TargetPlaceholder, target))
	}
	return argv
}

// TakesValue reports whether tok is exactly a value flag or a secret flag,
// so that the token after it is its value. Attached forms such as "-p22"
// or "--rate=100" carry their own value and report false.
func (d Descriptor) TakesValue(tok string) bool {
	for _, f := range d.ValueFlags {
		if tok == f {
			return true
		}
	}
	for _, f := range d.SecretFlags {
		if tok == f {
			return true
		}
	}
	return false
}

// IsSuccessExit reports whether code is one of the descriptor's success codes.
func (d Descriptor) IsSuccessExit(code int) bool {
	for _, c := range d.SuccessExitCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Catalog is an ordered, name-unique set of descriptors.
type Catalog struct {
	byName map[string]Descriptor
}

// NewCatalog applies defaults to and validates every descriptor.
func NewCatalog(descs ...Descriptor) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if err := c.add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(d Descriptor) error {
	d = d.WithDefaults()
	if err := d.Validate(); err != nil {
		return err
	}
	if _, dup := c.byName[d.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, d.Name)
	}
	c.byName[d.Name] = d
	return nil
}

// Get returns the descriptor registered under name.
func (c *Catalog) Get(name string) (Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Names returns the registered names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns the descriptors sorted by name.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, 0, len(c.byName))
	for _, n := range c.Names() {
		out = append(out, c.byName[n])
	}
	return out
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int { return len(c.byName) }
