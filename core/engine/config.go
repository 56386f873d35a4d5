package engine

import (
	"fmt"
	"time"

	"github.com/adalundhe/rebound/core/backoff"
	"github.com/adalundhe/rebound/core/failure"
	"github.com/adalundhe/rebound/core/pattern"
)

// DefaultHighConfidence is the confidence at or above which the matched
// strategy is accepted without consulting the advisory classifier.
const DefaultHighConfidence = 0.9

// Config holds the tunables of the decision engine.
type Config struct {
	HighConfidence      float64 `yaml:"high_confidence_threshold" json:"high_confidence_threshold"`
	TopK                int     `yaml:"top_k" json:"top_k"`
	HistoryDecay        float64 `yaml:"history_decay" json:"history_decay"`
	EscalationAvailable bool    `yaml:"escalation_available" json:"escalation_available"`

	// Unknown shapes the synthetic pattern used when nothing matches.
	Unknown UnknownConfig `yaml:"unknown" json:"unknown"`

	// StrategyDefaults supplies backoff parameters for strategies reached
	// without pattern parameters, e.g. an advisory recommendation or a
	// downgraded immediate retry.
	StrategyDefaults map[failure.Strategy]backoff.Params `yaml:"strategy_defaults" json:"strategy_defaults"`
}

type UnknownConfig struct {
	Confidence  float64        `yaml:"confidence" json:"confidence"`
	MaxAttempts int            `yaml:"max_attempts" json:"max_attempts"`
	Params      backoff.Params `yaml:"params" json:"params"`
}

func DefaultConfig() Config {
	return Config{
		HighConfidence:      DefaultHighConfidence,
		TopK:                3,
		HistoryDecay:        pattern.DefaultDecay,
		EscalationAvailable: true,
		Unknown: UnknownConfig{
			Confidence:  0.3,
			MaxAttempts: 3,
			Params:      backoff.Params{Base: 10 * time.Second},
		},
		StrategyDefaults: map[failure.Strategy]backoff.Params{
			failure.StrategyExponentialBackoff: {
				Base:       5 * time.Second,
				Multiplier: 2,
				Cap:        5 * time.Minute,
				Jitter:     0.2,
			},
			failure.StrategyLinearBackoff: {
				Base:      5 * time.Second,
				Increment: 5 * time.Second,
				Cap:       5 * time.Minute,
			},
			failure.StrategyFixedBackoff:   {Base: 10 * time.Second},
			failure.StrategyCircuitBreaker: {Base: 30 * time.Second},
		},
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.HighConfidence < 0 || c.HighConfidence > 1 {
		return fmt.Errorf("engine: high confidence threshold %v outside [0,1]", c.HighConfidence)
	}
	if c.TopK < 0 {
		return fmt.Errorf("engine: top_k must not be negative, got %d", c.TopK)
	}
	if c.HistoryDecay < 0 || c.HistoryDecay > 1 {
		return fmt.Errorf("engine: history decay %v outside [0,1]", c.HistoryDecay)
	}
	if c.Unknown.Confidence < 0 || c.Unknown.Confidence > 1 {
		return fmt.Errorf("engine: unknown confidence %v outside [0,1]", c.Unknown.Confidence)
	}
	if c.Unknown.MaxAttempts < 0 {
		return fmt.Errorf("engine: unknown max attempts must not be negative, got %d", c.Unknown.MaxAttempts)
	}
	for s, p := range c.StrategyDefaults {
		if !s.Valid() {
			return fmt.Errorf("engine: strategy defaults for unknown strategy %q", s)
		}
		if p.Base < 0 || p.Increment < 0 || p.Cap < 0 || p.Jitter < 0 || p.Jitter > 1 {
			return fmt.Errorf("engine: invalid backoff params for %s", s)
		}
	}
	return nil
}

// withDefaults fills zero fields. A zero HighConfidence is kept: it means
// "always accept the matcher".
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TopK == 0 {
		c.TopK = d.TopK
	}
	if c.HistoryDecay == 0 {
		c.HistoryDecay = d.HistoryDecay
	}
	if c.Unknown.Confidence == 0 && c.Unknown.MaxAttempts == 0 && c.Unknown.Params == (backoff.Params{}) {
		c.Unknown = d.Unknown
	}
	if c.Unknown.MaxAttempts == 0 {
		c.Unknown.MaxAttempts = d.Unknown.MaxAttempts
	}
	merged := make(map[failure.Strategy]backoff.Params, len(d.StrategyDefaults))
	for s, p := range d.StrategyDefaults {
		merged[s] = p
	}
	for s, p := range c.StrategyDefaults {
		merged[s] = p
	}
	c.StrategyDefaults = merged
	return c
}
