package pattern

import (
	"fmt"
	"strings"
)

// Source supplies the library to match against.
type Source interface {
	Current() *Library
}

// Library is an ordered, immutable set of compiled patterns. Order is
// declaration order and breaks confidence ties.
type Library struct {
	patterns []Pattern
	index    map[string]int
	lookup   map[string][]int
}

// NewLibrary validates and compiles patterns in declaration order.
func NewLibrary(patterns ...Pattern) (*Library, error) {
	lib := &Library{
		patterns: make([]Pattern, 0, len(patterns)),
		index:    make(map[string]int, len(patterns)),
		lookup:   make(map[string][]int),
	}

	for i, p := range patterns {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		if _, dup := lib.index[p.ID]; dup {
			return nil, fmt.Errorf("pattern %d: duplicate id %q", i, p.ID)
		}

		compiled, err := p.Signature.compile()
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", p.ID, err)
		}
		p = p.clone()
		p.Signature = compiled

		lib.index[p.ID] = len(lib.patterns)
		lib.patterns = append(lib.patterns, p)
	}

	lib.buildHintLookup()
	return lib, nil
}

// MustLibrary is like NewLibrary but panics on error.
func MustLibrary(patterns ...Pattern) *Library {
	lib, err := NewLibrary(patterns...)
	if err != nil {
		panic(err)
	}
	return lib
}

// buildHintLookup indexes every key a kind hint may name: pattern id,
// category and explicit hints.
func (l *Library) buildHintLookup() {
	for i, p := range l.patterns {
		keys := append([]string{p.ID, p.Category.String()}, p.Hints...)
		seen := make(map[string]bool, len(keys))
		for _, k := range keys {
			k = normalizeHint(k)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			l.lookup[k] = append(l.lookup[k], i)
		}
	}
}

func normalizeHint(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Current implements Source.
func (l *Library) Current() *Library {
	return l
}

// Len returns the number of patterns.
func (l *Library) Len() int {
	if l == nil {
		return 0
	}
	return len(l.patterns)
}

// Get returns the pattern with the given id.
func (l *Library) Get(id string) (Pattern, bool) {
	if id == UnknownID {
		return UnknownPattern(), true
	}
	if l == nil {
		return Pattern{}, false
	}
	i, ok := l.index[id]
	if !ok {
		return Pattern{}, false
	}
	return l.patterns[i].clone(), true
}

// Patterns returns copies of all patterns in declaration order.
func (l *Library) Patterns() []Pattern {
	if l == nil {
		return nil
	}
	out := make([]Pattern, 0, len(l.patterns))
	for _, p := range l.patterns {
		out = append(out, p.clone())
	}
	return out
}
