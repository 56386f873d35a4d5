package pattern

import (
	"math"
	"sort"

	"github.com/adalundhe/rebound/core/failure"
)

// DefaultDecay is the per-attempt confidence decay applied past a pattern's
// historical inflection point.
const DefaultDecay = 0.8

// Candidate is one ranked match.
type Candidate struct {
	Pattern    Pattern `json:"pattern"`
	Confidence float64 `json:"confidence"`

	// HintMatch is true when the signal kind hint named this pattern.
	HintMatch bool `json:"hint_match"`
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithDecay sets the decay factor. Values outside (0,1] are ignored.
func WithDecay(decay float64) MatcherOption {
	return func(m *Matcher) {
		if decay > 0 && decay <= 1 {
			m.decay = decay
		}
	}
}

// Matcher ranks library patterns against failure signals. It holds no
// mutable state and is safe for concurrent use.
type Matcher struct {
	source Source
	decay  float64
}

// NewMatcher creates a matcher reading patterns from source.
func NewMatcher(source Source, opts ...MatcherOption) *Matcher {
	m := &Matcher{source: source, decay: DefaultDecay}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Library returns the library the next Match call will use.
func (m *Matcher) Library() *Library {
	if m.source == nil {
		return nil
	}
	return m.source.Current()
}

// Match returns candidates ordered by precedence. Patterns named by the kind
// hint come first, then text matches by descending confidence. Ties keep
// declaration order. When nothing matches, the result is a single unknown
// candidate.
func (m *Matcher) Match(sig failure.Signal, history *failure.History) []Candidate {
	lib := m.Library()
	if lib == nil || lib.Len() == 0 || sig.Malformed() {
		return []Candidate{m.unknown()}
	}

	hinted := make(map[int]bool)
	for _, i := range lib.lookup[normalizeHint(sig.Hint())] {
		hinted[i] = true
	}

	var hintMatches, textMatches []Candidate
	sub := newSubject(sig)
	for i := range lib.patterns {
		p := &lib.patterns[i]
		switch {
		case hinted[i]:
			hintMatches = append(hintMatches, m.candidate(p, sig, history, true))
		case sig.RawMessage != "" || sig.StatusCode != 0:
			if p.Signature.matches(sub) {
				textMatches = append(textMatches, m.candidate(p, sig, history, false))
			}
		}
	}

	if len(hintMatches) == 0 && len(textMatches) == 0 {
		return []Candidate{m.unknown()}
	}

	byConfidence(hintMatches)
	byConfidence(textMatches)
	return append(hintMatches, textMatches...)
}

// Top returns the best candidate.
func (m *Matcher) Top(sig failure.Signal, history *failure.History) Candidate {
	return m.Match(sig, history)[0]
}

func (m *Matcher) candidate(p *Pattern, sig failure.Signal, history *failure.History, hint bool) Candidate {
	return Candidate{
		Pattern:    p.clone(),
		Confidence: m.confidence(p.ID, p.BaseConfidence, sig.Attempt(), history),
		HintMatch:  hint,
	}
}

// confidence applies decay when the attempt is past the pattern's
// historical inflection point.
func (m *Matcher) confidence(id string, base float64, attempt int, history *failure.History) float64 {
	stats, ok := history.Stats(id)
	if !ok || stats.InflectionAttempt <= 0 || attempt <= stats.InflectionAttempt {
		return failure.ClampConfidence(base)
	}
	excess := attempt - stats.InflectionAttempt
	return failure.ClampConfidence(base * math.Pow(m.decay, float64(excess)))
}

func (m *Matcher) unknown() Candidate {
	p := UnknownPattern()
	return Candidate{Pattern: p, Confidence: p.BaseConfidence}
}

// byConfidence sorts descending; the stable sort keeps declaration order for
// equal confidence.
func byConfidence(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Confidence > cs[j].Confidence
	})
}
