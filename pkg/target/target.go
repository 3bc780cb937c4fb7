// Package target decides whether a scan target lies inside the authorized
// address space. A target is one IPv4 address, a CIDR range, or a hostname
// under the internal lab suffix. Validation is all-or-nothing.
package target

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"unicode"

	"github.com/yl2chen/cidranger"
	"golang.org/x/net/idna"

	"github.com/scanguard/scanguard/pkg/defaults"
)

// Reason names why a target was rejected.
type Reason string

const (
	ReasonNotPrivate       Reason = "not-private"
	ReasonTooLarge         Reason = "too-large"
	ReasonMalformed        Reason = "malformed"
	ReasonDisallowedSuffix Reason = "disallowed-suffix"
	ReasonRangeNotAllowed  Reason = "range-not-allowed"
)

// Sentinel errors, one per Reason. Callers should use errors.Is().
var (
	ErrNotPrivate       = errors.New("target: address is outside the authorized networks")
	ErrRangeTooLarge    = errors.New("target: range exceeds the address ceiling")
	ErrMalformed        = errors.New("target: malformed target")
	ErrDisallowedSuffix = errors.New("target: hostname is outside the lab domain")
	ErrRangeNotAllowed  = errors.New("target: tool does not accept ranges")
)

var reasonErrs = map[Reason]error{
	ReasonNotPrivate:       ErrNotPrivate,
	ReasonTooLarge:         ErrRangeTooLarge,
	ReasonMalformed:        ErrMalformed,
	ReasonDisallowedSuffix: ErrDisallowedSuffix,
	ReasonRangeNotAllowed:  ErrRangeNotAllowed,
}

// ValidationError reports a rejected target.
type ValidationError struct {
	Target string
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("target %q rejected: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("target %q rejected: %s: %s", e.Target, e.Reason, e.Detail)
}

// Unwrap returns the sentinel matching Reason.
func (e *ValidationError) Unwrap() error { return reasonErrs[e.Reason] }

func reject(raw string, reason Reason, format string, args ...any) *ValidationError {
	return &ValidationError{Target: raw, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Kind is the syntactic form of an accepted target.
type Kind int

const (
	KindAddress Kind = iota
	KindRange
	KindHostname
)

func (k Kind) String() string {
	switch k {
	case KindAddress:
		return "address"
	case KindRange:
		return "range"
	case KindHostname:
		return "hostname"
	}
	return "unknown"
}

// Target is an accepted, normalized target.
type Target struct {
	Kind      Kind
	Addr      netip.Addr   // KindAddress
	Prefix    netip.Prefix // KindRange, masked
	Host      string       // KindHostname, ASCII lowercase
	Addresses uint64       // addresses covered; 0 for hostnames
}

// String returns the canonical form handed to the external tool.
func (t Target) String() string {
	switch t.Kind {
	case KindAddress:
		return t.Addr.String()
	case KindRange:
		return t.Prefix.String()
	default:
		return t.Host
	}
}

// IsRange reports whether the target covers more than one address by syntax.
func (t Target) IsRange() bool { return t.Kind == KindRange }

// Config configures a Validator. Zero values take the package defaults.
type Config struct {
	// AuthorizedNetworks replaces defaults.PrivateBlocks when non-empty.
	AuthorizedNetworks []string
	// ExtraNetworks are added to the authorized table.
	ExtraNetworks     []string
	LabSuffix         string
	MaxRangeAddresses uint64
}

// Validator checks targets against an immutable authorized-network table.
// It is safe for concurrent use.
type Validator struct {
	networks  cidranger.Ranger
	blocks    []netip.Prefix
	labSuffix string
	maxRange  uint64
}

// New builds a Validator. It fails if a configured network or the lab
// suffix is malformed.
func New(cfg Config) (*Validator, error) {
	nets := cfg.AuthorizedNetworks
	if len(nets) == 0 {
		nets = defaults.PrivateBlocks
	}
	nets = append(append([]string(nil), nets...), cfg.ExtraNetworks...)

	v := &Validator{
		networks:  cidranger.NewPCTrieRanger(),
		labSuffix: cfg.LabSuffix,
		maxRange:  cfg.MaxRangeAddresses,
	}
	if v.labSuffix == "" {
		v.labSuffix = defaults.LabDomainSuffix
	}
	if v.maxRange == 0 {
		v.maxRange = defaults.MaxRangeAddresses
	}

	suffix, err := normalizeSuffix(v.labSuffix)
	if err != nil {
		return nil, err
	}
	v.labSuffix = suffix

	for _, n := range nets {
		p, err := netip.ParsePrefix(strings.TrimSpace(n))
		if err != nil {
			return nil, fmt.Errorf("target: authorized network %q: %w", n, err)
		}
		p = p.Masked()
		if err := v.networks.Insert(cidranger.NewBasicRangerEntry(toIPNet(p))); err != nil {
			return nil, fmt.Errorf("target: authorized network %q: %w", n, err)
		}
		v.blocks = append(v.blocks, p)
	}
	return v, nil
}

// MustNew is New for package-level defaults; it panics on error.
func MustNew(cfg Config) *Validator {
	v, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return v
}

// LabSuffix returns the normalized hostname suffix.
func (v *Validator) LabSuffix() string { return v.labSuffix }

// MaxRangeAddresses returns the range ceiling.
func (v *Validator) MaxRangeAddresses() uint64 { return v.maxRange }

// Networks returns the authorized blocks.
func (v *Validator) Networks() []netip.Prefix {
	return append([]netip.Prefix(nil), v.blocks...)
}

// Validate accepts an address, range or lab hostname.
func (v *Validator) Validate(raw string) (Target, error) {
	return v.validate(raw, true)
}

// ValidateFor is Validate for a tool that may or may not accept ranges.
func (v *Validator) ValidateFor(raw string, allowRanges bool) (Target, error) {
	return v.validate(raw, allowRanges)
}

func (v *Validator) validate(raw string, allowRanges bool) (Target, error) {
	s := raw
	switch {
	case s == "":
		return Target{}, reject(raw, ReasonMalformed, "empty target")
	case len(s) > 253:
		return Target{}, reject(raw, ReasonMalformed, "target longer than 253 bytes")
	case strings.HasPrefix(s, "-"):
		return Target{}, reject(raw, ReasonMalformed, "target must not look like a flag")
	case strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0:
		return Target{}, reject(raw, ReasonMalformed, "target contains whitespace or control characters")
	}

	if strings.Contains(s, "/") {
		return v.validateRange(raw, allowRanges)
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return v.validateAddr(raw, addr)
	}
	if looksNumeric(s) || strings.Contains(s, ":") {
		return Target{}, reject(raw, ReasonMalformed, "not a valid IP address")
	}
	return v.validateHost(raw)
}

func (v *Validator) validateAddr(raw string, addr netip.Addr) (Target, error) {
	if addr.Zone() != "" {
		return Target{}, reject(raw, ReasonMalformed, "zoned addresses are not accepted")
	}
	addr = addr.Unmap()
	ok, err := v.networks.Contains(net.IP(addr.AsSlice()))
	if err != nil {
		return Target{}, reject(raw, ReasonMalformed, "%v", err)
	}
	if !ok {
		return Target{}, reject(raw, ReasonNotPrivate, "%s is not in an authorized network", addr)
	}
	return Target{Kind: KindAddress, Addr: addr, Addresses: 1}, nil
}

func (v *Validator) validateRange(raw string, allowRanges bool) (Target, error) {
	p, err := netip.ParsePrefix(raw)
	if err != nil {
		return Target{}, reject(raw, ReasonMalformed, "invalid CIDR range")
	}
	if p.Addr().Zone() != "" {
		return Target{}, reject(raw, ReasonMalformed, "zoned addresses are not accepted")
	}
	if !allowRanges {
		return Target{}, reject(raw, ReasonRangeNotAllowed, "this tool accepts a single host only")
	}
	if p.Addr().Is4In6() {
		p = netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
		if !p.IsValid() {
			return Target{}, reject(raw, ReasonMalformed, "invalid mapped range")
		}
	}
	p = p.Masked()

	hostBits := p.Addr().BitLen() - p.Bits()
	if hostBits >= 63 || uint64(1)<<hostBits > v.maxRange {
		return Target{}, reject(raw, ReasonTooLarge, "/%d exceeds %d addresses", p.Bits(), v.maxRange)
	}
	count := uint64(1) << hostBits

	if !v.covers(p) {
		return Target{}, reject(raw, ReasonNotPrivate, "%s is not inside one authorized network", p)
	}
	return Target{Kind: KindRange, Prefix: p, Addresses: count}, nil
}

// covers reports whether a single authorized block contains all of p.
// CIDR blocks nest or are disjoint, so a block containing the first address
// with a prefix no longer than p's contains the whole range.
func (v *Validator) covers(p netip.Prefix) bool {
	entries, err := v.networks.ContainingNetworks(net.IP(p.Addr().AsSlice()))
	if err != nil {
		return false
	}
	for _, e := range entries {
		n := e.Network()
		ones, _ := n.Mask.Size()
		if ones <= p.Bits() {
			return true
		}
	}
	return false
}

func (v *Validator) validateHost(raw string) (Target, error) {
	host := strings.TrimSuffix(strings.ToLower(raw), ".")
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return Target{}, reject(raw, ReasonMalformed, "invalid hostname: %v", err)
	}
	if ascii == "" || len(ascii) > 253 {
		return Target{}, reject(raw, ReasonMalformed, "invalid hostname length")
	}
	for _, label := range strings.Split(ascii, ".") {
		if !validLabel(label) {
			return Target{}, reject(raw, ReasonMalformed, "invalid hostname label %q", label)
		}
	}
	if !strings.HasSuffix(ascii, v.labSuffix) || len(ascii) == len(v.labSuffix) {
		return Target{}, reject(raw, ReasonDisallowedSuffix, "hostnames must end in %s", v.labSuffix)
	}
	return Target{Kind: KindHostname, Host: ascii}, nil
}

func normalizeSuffix(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".")
	bare := strings.TrimPrefix(s, ".")
	if bare == "" {
		return "", fmt.Errorf("target: empty lab suffix")
	}
	ascii, err := idna.Lookup.ToASCII(bare)
	if err != nil {
		return "", fmt.Errorf("target: lab suffix %q: %w", s, err)
	}
	return "." + ascii, nil
}

// validLabel enforces letters, digits and hyphens, with no leading or
// trailing hyphen.
func validLabel(label string) bool {
	if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}

func looksNumeric(s string) bool {
	return strings.Trim(s, "0123456789.") == ""
}

func toIPNet(p netip.Prefix) net.IPNet {
	addr := p.Addr()
	return net.IPNet{
		IP:   net.IP(addr.AsSlice()),
		Mask: net.CIDRMask(p.Bits(), addr.BitLen()),
	}
}
