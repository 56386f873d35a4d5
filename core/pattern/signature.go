package pattern

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/gobwas/glob"

	"github.com/adalundhe/rebound/core/failure"
)

// Kind tags a Signature variant.
type Kind string

const (
	// KindSubstring matches when any value occurs in the message,
	// ignoring case.
	KindSubstring Kind = "substring"

	// KindRegex matches when any RE2 expression matches the message.
	KindRegex Kind = "regex"

	// KindGlob matches when any glob matches the whole lowercased message.
	KindGlob Kind = "glob"

	// KindStatus matches when any code equals the signal status code or
	// appears as a whole token in the message.
	KindStatus Kind = "status"

	// KindAll matches when every nested signature matches.
	KindAll Kind = "all"

	// KindAny matches when at least one nested signature matches.
	KindAny Kind = "any"
)

// Signature is a tagged variant describing how a pattern recognizes a
// failure signal. Build one with Substring, Regex, Glob, Status, All or Any.
type Signature struct {
	Kind   Kind        `yaml:"kind" json:"kind"`
	Values []string    `yaml:"values,omitempty" json:"values,omitempty"`
	Codes  []int       `yaml:"codes,omitempty" json:"codes,omitempty"`
	All    []Signature `yaml:"all,omitempty" json:"all,omitempty"`
	Any    []Signature `yaml:"any,omitempty" json:"any,omitempty"`

	lowered []string
	regexes []*regexp.Regexp
	globs   []glob.Glob
}

// Substring builds a case-insensitive any-of substring signature.
func Substring(values ...string) Signature {
	return Signature{Kind: KindSubstring, Values: values}
}

// Regex builds an any-of regular expression signature.
func Regex(exprs ...string) Signature {
	return Signature{Kind: KindRegex, Values: exprs}
}

// Glob builds an any-of glob signature.
func Glob(patterns ...string) Signature {
	return Signature{Kind: KindGlob, Values: patterns}
}

// Status builds a status code signature.
func Status(codes ...int) Signature {
	return Signature{Kind: KindStatus, Codes: codes}
}

// All builds a conjunction of signatures.
func All(sigs ...Signature) Signature {
	return Signature{Kind: KindAll, All: sigs}
}

// Any builds a disjunction of signatures.
func Any(sigs ...Signature) Signature {
	return Signature{Kind: KindAny, Any: sigs}
}

// compile validates the signature and returns a compiled copy.
func (s Signature) compile() (Signature, error) {
	out := Signature{Kind: s.Kind}

	switch s.Kind {
	case KindSubstring:
		if len(s.Values) == 0 {
			return out, fmt.Errorf("substring signature needs at least one value")
		}
		out.Values = append([]string(nil), s.Values...)
		out.lowered = lowerAll(s.Values)
	case KindRegex:
		regexes, err := compileRegexes(s.Values)
		if err != nil {
			return out, err
		}
		out.Values = append([]string(nil), s.Values...)
		out.regexes = regexes
	case KindGlob:
		globs, err := compileGlobs(s.Values)
		if err != nil {
			return out, err
		}
		out.Values = append([]string(nil), s.Values...)
		out.globs = globs
	case KindStatus:
		if len(s.Codes) == 0 {
			return out, fmt.Errorf("status signature needs at least one code")
		}
		out.Codes = append([]int(nil), s.Codes...)
	case KindAll:
		members, err := compileMembers("all", s.All)
		if err != nil {
			return out, err
		}
		out.All = members
	case KindAny:
		members, err := compileMembers("any", s.Any)
		if err != nil {
			return out, err
		}
		out.Any = members
	default:
		return out, fmt.Errorf("unknown signature kind %q", s.Kind)
	}

	return out, nil
}

func compileMembers(kind string, members []Signature) ([]Signature, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("%s signature needs at least one member", kind)
	}
	out := make([]Signature, 0, len(members))
	for i, member := range members {
		compiled, err := member.compile()
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", kind, i, err)
		}
		out = append(out, compiled)
	}
	return out, nil
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}

func compileRegexes(exprs []string) ([]*regexp.Regexp, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("regex signature needs at least one expression")
	}
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile regex %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("glob signature needs at least one pattern")
	}
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("compile glob %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// subject is the per-signal input shared by every variant.
type subject struct {
	message string
	lowered string
	status  int
	tokens  map[int]struct{}
}

func newSubject(sig failure.Signal) *subject {
	return &subject{
		message: sig.RawMessage,
		lowered: strings.ToLower(sig.RawMessage),
		status:  sig.StatusCode,
	}
}

// numericTokens lazily extracts integers that stand alone in the message.
func (s *subject) numericTokens() map[int]struct{} {
	if s.tokens != nil {
		return s.tokens
	}
	s.tokens = make(map[int]struct{})
	fields := strings.FieldsFunc(s.message, func(r rune) bool {
		return !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil {
			s.tokens[n] = struct{}{}
		}
	}
	return s.tokens
}

// matches dispatches on the variant tag.
func (s *Signature) matches(sub *subject) bool {
	switch s.Kind {
	case KindSubstring:
		return matchSubstring(s.lowered, sub)
	case KindRegex:
		return matchRegex(s.regexes, sub)
	case KindGlob:
		return matchGlob(s.globs, sub)
	case KindStatus:
		return matchStatus(s.Codes, sub)
	case KindAll:
		return matchAll(s.All, sub)
	case KindAny:
		return matchAny(s.Any, sub)
	default:
		return false
	}
}

func matchSubstring(values []string, sub *subject) bool {
	for _, v := range values {
		if strings.Contains(sub.lowered, v) {
			return true
		}
	}
	return false
}

func matchRegex(regexes []*regexp.Regexp, sub *subject) bool {
	for _, re := range regexes {
		if re.MatchString(sub.message) {
			return true
		}
	}
	return false
}

func matchGlob(globs []glob.Glob, sub *subject) bool {
	for _, g := range globs {
		if g.Match(sub.lowered) {
			return true
		}
	}
	return false
}

func matchStatus(codes []int, sub *subject) bool {
	for _, code := range codes {
		if sub.status == code {
			return true
		}
	}
	tokens := sub.numericTokens()
	for _, code := range codes {
		if _, ok := tokens[code]; ok {
			return true
		}
	}
	return false
}

func matchAll(members []Signature, sub *subject) bool {
	for i := range members {
		if !members[i].matches(sub) {
			return false
		}
	}
	return true
}

func matchAny(members []Signature, sub *subject) bool {
	for i := range members {
		if members[i].matches(sub) {
			return true
		}
	}
	return false
}

// String renders the signature for diagnostics.
func (s Signature) String() string {
	switch s.Kind {
	case "":
		return "none"
	case KindStatus:
		codes := make([]string, 0, len(s.Codes))
		for _, c := range s.Codes {
			codes = append(codes, strconv.Itoa(c))
		}
		return fmt.Sprintf("status(%s)", strings.Join(codes, ","))
	case KindAll:
		return fmt.Sprintf("all(%s)", joinMembers(s.All, " & "))
	case KindAny:
		return fmt.Sprintf("any(%s)", joinMembers(s.Any, " | "))
	default:
		return fmt.Sprintf("%s(%s)", s.Kind, strings.Join(s.Values, " | "))
	}
}

func joinMembers(members []Signature, sep string) string {
	parts := make([]string, 0, len(members))
	for _, m := range members {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, sep)
}
