// Package security validates raw SQL fragments handed to the statement
// builder (SelectRaw, WhereRaw, JoinRaw, OrderByRaw, HavingRaw, ...) against
// common injection shapes. Bound values never pass through here: they travel
// as placeholders and cannot alter the statement text.
package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsafeFragment is returned when a raw fragment matches a dangerous pattern.
var ErrUnsafeFragment = errors.New("unsafe raw SQL fragment")

// Validator checks raw fragments against a pattern list.
type Validator struct {
	rules []rule
}

type rule struct {
	name    string
	pattern *regexp.Regexp
}

// ValidatorOption configures the Validator.
type ValidatorOption func(*Validator)

// WithStrict also rejects fragments containing UNION, EXEC or EXECUTE anywhere.
func WithStrict() ValidatorOption {
	return func(v *Validator) {
		v.rules = append(v.rules, compileRules(strictPatterns)...)
	}
}

// WithPattern adds a named custom pattern (matched case-insensitively).
func WithPattern(name, pattern string) ValidatorOption {
	return func(v *Validator) {
		v.rules = append(v.rules, rule{name: name, pattern: regexp.MustCompile("(?i)" + pattern)})
	}
}

// NewValidator creates a validator with the default pattern set.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{rules: compileRules(defaultPatterns)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// defaultPatterns are shapes no legitimate builder fragment needs.
var defaultPatterns = [][2]string{
	{"line comment", `--(\s|$)`},
	{"block comment", `/\*`},
	{"mysql comment", `#(\s|$)`},
	{"stacked statement", `;\s*\S`},
	{"union select", `\bUNION(\s+ALL)?\s+SELECT\b`},
	{"procedure call", `\b(XP_CMDSHELL|SP_EXECUTESQL)\b|\bEXEC(UTE)?\s*\(`},
	{"schema lookup", `\bINFORMATION_SCHEMA\b`},
	{"timing function", `\b(PG_SLEEP|SLEEP|BENCHMARK)\s*\(|\bWAITFOR\s+DELAY\b`},
	{"tautology", `\bOR\s+('?)(\w+)('?)\s*=\s*('?)(\w+)('?)`},
}

var strictPatterns = [][2]string{
	{"union", `\bUNION\b`},
	{"exec", `\bEXEC(UTE)?\b`},
}

func compileRules(patterns [][2]string) []rule {
	out := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, rule{name: p[0], pattern: regexp.MustCompile("(?i)" + p[1])})
	}
	return out
}

// ValidateFragment returns an ErrUnsafeFragment naming the first rule the
// fragment violates. Quoted string literals are ignored.
func (v *Validator) ValidateFragment(fragment string) error {
	text := stripLiterals(fragment)
	for _, r := range v.rules {
		if r.name == "tautology" {
			if isTautology(r.pattern, text) {
				return fmt.Errorf("%w: %s", ErrUnsafeFragment, r.name)
			}
			continue
		}
		if r.pattern.MatchString(text) {
			return fmt.Errorf("%w: %s", ErrUnsafeFragment, r.name)
		}
	}
	return nil
}

// isTautology reports "OR x = x" style comparisons of identical literals.
func isTautology(re *regexp.Regexp, text string) bool {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if strings.EqualFold(m[2], m[5]) {
			return true
		}
	}
	return false
}

// stripLiterals blanks the contents of single-quoted literals so that data
// such as 'a--b' does not trip comment rules. Literal quotes are kept so
// tautologies like OR '1'='1' still match.
func stripLiterals(s string) string {
	var sb strings.Builder
	in := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			if in && i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			in = !in
			sb.WriteByte(c)
			continue
		}
		if in {
			if isWord(c) {
				sb.WriteByte(c)
			} else {
				sb.WriteByte(' ')
			}
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func isWord(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
