// Package pattern holds the recovery pattern library and the matcher that
// ranks patterns against a failure signal.
//
// A Library is immutable once built. Reloading a pattern file produces a new
// Library which replaces the old one atomically; see Watcher.
package pattern

import (
	"fmt"
	"math"

	"github.com/adalundhe/rebound/core/backoff"
	rerrors "github.com/adalundhe/rebound/core/errors"
	"github.com/adalundhe/rebound/core/failure"
)

// UnknownID is the id of the synthetic pattern returned when nothing matches.
const UnknownID = "unknown"

// Pattern describes one known failure shape and how to recover from it.
type Pattern struct {
	ID             string           `yaml:"id" json:"id"`
	Category       rerrors.Category `yaml:"category" json:"category"`
	Description    string           `yaml:"description,omitempty" json:"description,omitempty"`
	Hints          []string         `yaml:"hints,omitempty" json:"hints,omitempty"`
	Signature      Signature        `yaml:"signature" json:"signature"`
	Strategy       failure.Strategy `yaml:"strategy" json:"strategy"`
	BaseConfidence float64          `yaml:"base_confidence" json:"base_confidence"`
	MaxAttempts    int              `yaml:"max_attempts" json:"max_attempts"`
	Params         backoff.Params   `yaml:"params" json:"params"`
}

// Synthetic reports whether p is the unknown fallback pattern.
func (p Pattern) Synthetic() bool {
	return p.ID == UnknownID
}

// validate checks everything except the signature.
func (p Pattern) validate() error {
	if p.ID == "" {
		return fmt.Errorf("pattern id is required")
	}
	if p.ID == UnknownID {
		return fmt.Errorf("pattern id %q is reserved", UnknownID)
	}
	if !p.Strategy.Valid() {
		return fmt.Errorf("pattern %s: unknown strategy %q", p.ID, p.Strategy)
	}
	if math.IsNaN(p.BaseConfidence) || p.BaseConfidence < 0 || p.BaseConfidence > 1 {
		return fmt.Errorf("pattern %s: base confidence %v outside [0,1]", p.ID, p.BaseConfidence)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("pattern %s: max attempts must be at least 1, got %d", p.ID, p.MaxAttempts)
	}
	return validateParams(p.ID, p.Params)
}

func validateParams(id string, params backoff.Params) error {
	if params.Base < 0 || params.Increment < 0 || params.Cap < 0 {
		return fmt.Errorf("pattern %s: backoff durations must not be negative", id)
	}
	if params.Multiplier != 0 && params.Multiplier < 1 {
		return fmt.Errorf("pattern %s: multiplier %v must be at least 1", id, params.Multiplier)
	}
	if params.Jitter < 0 || params.Jitter > 1 {
		return fmt.Errorf("pattern %s: jitter %v outside [0,1]", id, params.Jitter)
	}
	if params.Cap > 0 && params.Base > params.Cap {
		return fmt.Errorf("pattern %s: base %s exceeds cap %s", id, params.Base, params.Cap)
	}
	return nil
}

// clone returns a deep copy so callers cannot reach library internals.
func (p Pattern) clone() Pattern {
	p.Hints = append([]string(nil), p.Hints...)
	return p
}
