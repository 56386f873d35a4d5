// Package failure defines the data model shared by the recovery engine:
// failure signals, recovery strategies, decisions, attempts and history.
package failure

import (
	"fmt"
	"strings"
)

// Strategy is the recovery action chosen for a failed task.
type Strategy string

const (
	// StrategyImmediateRetry retries with no delay.
	StrategyImmediateRetry Strategy = "immediate_retry"

	// StrategyExponentialBackoff retries after base * multiplier^attempt.
	StrategyExponentialBackoff Strategy = "exponential_backoff"

	// StrategyLinearBackoff retries after base + increment*attempt, or the
	// server-suggested wait when one is present.
	StrategyLinearBackoff Strategy = "linear_backoff"

	// StrategyFixedBackoff retries after a constant short delay.
	StrategyFixedBackoff Strategy = "fixed_backoff"

	// StrategyCircuitBreaker holds the task until the resource class circuit
	// closes again.
	StrategyCircuitBreaker Strategy = "circuit_breaker"

	// StrategyEscalate hands the task to a human or an alternate worker.
	StrategyEscalate Strategy = "escalate"

	// StrategySkip drops the task without counting it as failed.
	StrategySkip Strategy = "skip"

	// StrategyPermanentlyFailed abandons the task.
	StrategyPermanentlyFailed Strategy = "permanently_failed"
)

var knownStrategies = []Strategy{
	StrategyImmediateRetry,
	StrategyExponentialBackoff,
	StrategyLinearBackoff,
	StrategyFixedBackoff,
	StrategyCircuitBreaker,
	StrategyEscalate,
	StrategySkip,
	StrategyPermanentlyFailed,
}

// Strategies returns every known strategy in a stable order.
func Strategies() []Strategy {
	out := make([]Strategy, len(knownStrategies))
	copy(out, knownStrategies)
	return out
}

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	for _, known := range knownStrategies {
		if s == known {
			return true
		}
	}
	return false
}

// IsRetry reports whether the strategy schedules another attempt.
func (s Strategy) IsRetry() bool {
	switch s {
	case StrategyImmediateRetry, StrategyExponentialBackoff, StrategyLinearBackoff,
		StrategyFixedBackoff, StrategyCircuitBreaker:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the strategy ends automatic recovery for the task.
func (s Strategy) IsTerminal() bool {
	switch s {
	case StrategyEscalate, StrategySkip, StrategyPermanentlyFailed:
		return true
	default:
		return false
	}
}

func (s Strategy) String() string {
	return string(s)
}

// ParseStrategy parses a strategy name. Dashes and case are normalized.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	if !s.Valid() {
		return "", fmt.Errorf("unknown strategy %q", name)
	}
	return s, nil
}

// UnmarshalText implements encoding.TextUnmarshaler so strategies can be read
// straight from YAML and JSON.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s), nil
}
