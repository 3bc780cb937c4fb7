package core

import (
	"fmt"
	"net/netip"
	"regexp"

	"github.com/scanguard/scanguard/pkg/sanitize"
	"github.com/scanguard/scanguard/pkg/tool"
)

// octetRangeRe matches scanner address shorthand such as 10.0.0.1-254,
// 10.0.*.1 or 10.0.0.1,2 that net/netip does not parse.
var octetRangeRe = regexp.MustCompile(`^[0-9*,\-]+(\.[0-9*,\-]+){3}(/[0-9]+)?$`)

// checkArgumentAddresses applies the target rules to every positional
// token. Most scanners treat any positional word as an additional target,
// so only values consumed by one of the descriptor's value or secret flags
// are exempt.
func (e *Executor) checkArgumentAddresses(tokens []string, d tool.Descriptor) error {
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if sanitize.IsFlag(tok) {
			if d.TakesValue(tok) {
				i++
			}
			continue
		}
		if octetRangeRe.MatchString(tok) && !parses(tok) {
			return fmt.Errorf("%w: %q: address shorthand is not accepted, pass the target field instead", ErrArgumentTarget, tok)
		}
		if _, err := e.validator.ValidateFor(tok, d.AllowRanges); err != nil {
			return fmt.Errorf("%w: %v", ErrArgumentTarget, err)
		}
	}
	return nil
}

func parses(tok string) bool {
	if _, err := netip.ParseAddr(tok); err == nil {
		return true
	}
	_, err := netip.ParsePrefix(tok)
	return err == nil
}
