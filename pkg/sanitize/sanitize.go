// Package sanitize turns an untrusted argument string into a token vector
// that is safe to hand to exec as argv.
//
// Tokenization follows POSIX shell word splitting (quotes honoured, no
// expansion). Any shell metacharacter anywhere in the input is rejected,
// and every flag-shaped token must match the tool's allow-list by prefix.
// Nothing is ever silently dropped or added.
package sanitize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Sentinel errors. Callers should use errors.Is().
var (
	ErrTooLong          = errors.New("sanitize: argument string too long")
	ErrDeniedCharacter  = errors.New("sanitize: denied character")
	ErrFlagNotAllowed   = errors.New("sanitize: flag not allowed")
	ErrUnbalancedQuotes = errors.New("sanitize: unbalanced quotes or trailing escape")
	ErrMissingRequired  = errors.New("sanitize: required flag missing")
)

// DeniedChars is the fixed metacharacter deny-set.
const DeniedChars = ";|&`$<>\n\r\x00"

// Error describes a rejected argument string. It never carries a whole
// token: flag values may hold credentials, and the message reaches events
// and logs.
type Error struct {
	// Token is the flag name for ErrFlagNotAllowed and the alternatives
	// for ErrMissingRequired.
	Token string
	Char  rune
	Err   error
}

func (e *Error) Error() string {
	switch {
	case errors.Is(e.Err, ErrDeniedCharacter):
		return fmt.Sprintf("%v %q", e.Err, e.Char)
	case e.Token != "":
		return fmt.Sprintf("%v: %q", e.Err, e.Token)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Sanitize validates raw and returns its tokens in order, quotes removed.
// maxLength <= 0 disables the length check.
func Sanitize(raw string, allowedFlags []string, maxLength int) ([]string, error) {
	if maxLength > 0 && len(raw) > maxLength {
		return nil, &Error{Err: fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLong, len(raw), maxLength)}
	}
	if i := strings.IndexAny(raw, DeniedChars); i >= 0 {
		return nil, &Error{Char: []rune(raw[i:])[0], Err: ErrDeniedCharacter}
	}

	tokens, err := shellquote.Split(raw)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("%w: %v", ErrUnbalancedQuotes, err)}
	}

	for _, tok := range tokens {
		if i := strings.IndexAny(tok, DeniedChars); i >= 0 {
			return nil, &Error{Char: []rune(tok[i:])[0], Err: ErrDeniedCharacter}
		}
		if IsFlag(tok) && !FlagAllowed(tok, allowedFlags) {
			return nil, &Error{Token: flagName(tok), Err: ErrFlagNotAllowed}
		}
	}
	if tokens == nil {
		tokens = []string{}
	}
	return tokens, nil
}

// flagName drops an attached "=value" from a flag token.
func flagName(tok string) string {
	name, _, _ := strings.Cut(tok, "=")
	return name
}

// IsFlag reports whether a token is flag-shaped.
func IsFlag(tok string) bool {
	return strings.HasPrefix(tok, "-")
}

// FlagAllowed reports whether tok starts with one of the allowed flags.
func FlagAllowed(tok string, allowed []string) bool {
	for _, f := range allowed {
		if f != "" && strings.HasPrefix(tok, f) {
			return true
		}
	}
	return false
}

// CheckRequired verifies that every group has at least one alternative
// matched by a flag token. It never modifies tokens.
func CheckRequired(tokens []string, groups [][]string) error {
	for _, group := range groups {
		if !groupSatisfied(tokens, group) {
			return &Error{Token: strings.Join(group, "|"), Err: ErrMissingRequired}
		}
	}
	return nil
}

func groupSatisfied(tokens []string, group []string) bool {
	for _, tok := range tokens {
		if IsFlag(tok) && FlagAllowed(tok, group) {
			return true
		}
	}
	return false
}

// Join renders tokens back into a string that Sanitize splits into the
// same tokens.
func Join(tokens []string) string {
	return shellquote.Join(tokens...)
}

// Redact returns a copy of tokens with credential values masked. A value is
// either the token following an exact secret flag or the remainder of a
// token that starts with one (-pSecret, --password=Secret).
func Redact(tokens []string, secretFlags []string) []string {
	out := make([]string, len(tokens))
	copy(out, tokens)
	if len(secretFlags) == 0 {
		return out
	}
	for i := 0; i < len(out); i++ {
		tok := out[i]
		if !IsFlag(tok) {
			continue
		}
	flags:
		for _, f := range secretFlags {
			switch {
			case tok == f:
				if i+1 < len(out) {
					out[i+1] = redacted
					i++
				}
				break flags
			case strings.HasPrefix(tok, f+"="):
				out[i] = f + "=" + redacted
				break flags
			case strings.HasPrefix(tok, f) && !strings.HasPrefix(f, "--"):
				out[i] = f + redacted
				break flags
			}
		}
	}
	return out
}

const redacted = "***"
