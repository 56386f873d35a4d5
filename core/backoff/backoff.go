// Package backoff computes retry delays for recovery strategies.
//
// Every function in this package is pure: the same inputs always produce the
// same delay. Randomized jitter is replaced by jitter derived from a caller
// supplied seed so repeated decisions for the same failure agree.
package backoff

import (
	"math"
	"time"

	"github.com/adalundhe/rebound/core/failure"
)

// MaxDelay is the saturation value for uncapped or overflowing delays.
const MaxDelay = time.Duration(math.MaxInt64)

// DefaultMultiplier is used when Params.Multiplier is unset.
const DefaultMultiplier = 2.0

// Params carries the per-pattern backoff parameters.
type Params struct {
	Base       time.Duration `yaml:"base" json:"base"`
	Multiplier float64       `yaml:"multiplier" json:"multiplier"`
	Increment  time.Duration `yaml:"increment" json:"increment"`
	Cap        time.Duration `yaml:"cap" json:"cap"`
	Jitter     float64       `yaml:"jitter" json:"jitter"`
}

// Hints carries per-signal inputs that override the formula.
type Hints struct {
	// SuggestedWait is a server-suggested wait. It takes precedence over the
	// linear formula.
	SuggestedWait time.Duration

	// CircuitRemaining is the time left until the resource class circuit
	// closes. Zero when the circuit is not tripped.
	CircuitRemaining time.Duration
}

// Delay returns the un-jittered delay for strategy at the given attempt.
// Negative attempts are treated as zero and the result is never negative.
func Delay(strategy failure.Strategy, attempt int, p Params, h Hints) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	switch strategy {
	case failure.StrategyImmediateRetry:
		return 0
	case failure.StrategyExponentialBackoff:
		return exponential(attempt, p)
	case failure.StrategyLinearBackoff:
		if h.SuggestedWait > 0 {
			return h.SuggestedWait
		}
		return linear(attempt, p)
	case failure.StrategyFixedBackoff:
		return nonNegative(capDelay(p.Base, p.Cap))
	case failure.StrategyCircuitBreaker:
		if h.CircuitRemaining > 0 {
			return h.CircuitRemaining
		}
		return nonNegative(capDelay(p.Base, p.Cap))
	default:
		return 0
	}
}

// exponential computes base * multiplier^attempt, capped.
func exponential(attempt int, p Params) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = DefaultMultiplier
	}

	raw := float64(p.Base) * math.Pow(multiplier, float64(attempt))
	return capDelay(fromFloat(raw), p.Cap)
}

// linear computes base + increment*attempt, capped.
func linear(attempt int, p Params) time.Duration {
	increment := p.Increment
	if increment < 0 {
		increment = 0
	}
	raw := float64(nonNegative(p.Base)) + float64(increment)*float64(attempt)
	return capDelay(fromFloat(raw), p.Cap)
}

// fromFloat converts to a Duration, saturating on overflow.
func fromFloat(f float64) time.Duration {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if math.IsInf(f, 1) || f >= float64(MaxDelay) {
		return MaxDelay
	}
	return time.Duration(f)
}

// capDelay limits delay to limit. A non-positive limit means uncapped.
func capDelay(delay, limit time.Duration) time.Duration {
	if limit > 0 && delay > limit {
		return limit
	}
	return delay
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
