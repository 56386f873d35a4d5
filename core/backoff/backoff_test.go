package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adalundhe/rebound/core/failure"
)

// =============================================================================
// Formula Tests
// =============================================================================

func TestDelay_Exponential(t *testing.T) {
	p := Params{Base: 5 * time.Second, Multiplier: 2, Cap: 5 * time.Minute}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{5, 160 * time.Second},
		{6, 5 * time.Minute},
		{60, 5 * time.Minute},
	}

	for _, tt := range tests {
		got := Delay(failure.StrategyExponentialBackoff, tt.attempt, p, Hints{})
		assert.Equal(t, tt.expected, got, "attempt %d", tt.attempt)
	}
}

func TestDelay_ExponentialDefaultMultiplier(t *testing.T) {
	p := Params{Base: time.Second, Cap: time.Minute}
	assert.Equal(t, 4*time.Second, Delay(failure.StrategyExponentialBackoff, 2, p, Hints{}))
}

func TestDelay_Linear(t *testing.T) {
	p := Params{Base: 5 * time.Second, Increment: 5 * time.Second, Cap: 30 * time.Second}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{4, 25 * time.Second},
		{5, 30 * time.Second},
		{50, 30 * time.Second},
	}

	for _, tt := range tests {
		got := Delay(failure.StrategyLinearBackoff, tt.attempt, p, Hints{})
		assert.Equal(t, tt.expected, got, "attempt %d", tt.attempt)
	}
}

func TestDelay_LinearSuggestedWaitWins(t *testing.T) {
	p := Params{Base: 5 * time.Second, Increment: 5 * time.Second, Cap: 5 * time.Minute}
	got := Delay(failure.StrategyLinearBackoff, 1, p, Hints{SuggestedWait: 60 * time.Second})
	assert.Equal(t, 60*time.Second, got)
}

func TestDelay_SuggestedWaitIgnoredByExponential(t *testing.T) {
	p := Params{Base: 5 * time.Second, Multiplier: 2, Cap: time.Minute}
	got := Delay(failure.StrategyExponentialBackoff, 0, p, Hints{SuggestedWait: 60 * time.Second})
	assert.Equal(t, 5*time.Second, got)
}

func TestDelay_CircuitBreaker(t *testing.T) {
	p := Params{Base: 30 * time.Second}

	t.Run("tripped uses remaining", func(t *testing.T) {
		got := Delay(failure.StrategyCircuitBreaker, 0, p, Hints{CircuitRemaining: 28 * time.Minute})
		assert.Equal(t, 28*time.Minute, got)
	})

	t.Run("closed uses base", func(t *testing.T) {
		got := Delay(failure.StrategyCircuitBreaker, 0, p, Hints{})
		assert.Equal(t, 30*time.Second, got)
	})
}

func TestDelay_FixedAndImmediate(t *testing.T) {
	p := Params{Base: 10 * time.Second}
	assert.Equal(t, 10*time.Second, Delay(failure.StrategyFixedBackoff, 7, p, Hints{}))
	assert.Equal(t, time.Duration(0), Delay(failure.StrategyImmediateRetry, 7, p, Hints{}))
}

func TestDelay_TerminalStrategiesAreZero(t *testing.T) {
	p := Params{Base: 10 * time.Second}
	for _, s := range []failure.Strategy{failure.StrategyEscalate, failure.StrategySkip, failure.StrategyPermanentlyFailed} {
		assert.Equal(t, time.Duration(0), Delay(s, 3, p, Hints{SuggestedWait: time.Minute}), s.String())
	}
}

// =============================================================================
// Edge Cases
// =============================================================================

func TestDelay_NegativeAttemptTreatedAsZero(t *testing.T) {
	p := Params{Base: 5 * time.Second, Multiplier: 2, Increment: time.Second, Cap: time.Minute}
	assert.Equal(t, 5*time.Second, Delay(failure.StrategyExponentialBackoff, -3, p, Hints{}))
	assert.Equal(t, 5*time.Second, Delay(failure.StrategyLinearBackoff, -3, p, Hints{}))
}

func TestDelay_OverflowSaturates(t *testing.T) {
	p := Params{Base: time.Hour, Multiplier: 10}
	got := Delay(failure.StrategyExponentialBackoff, math.MaxInt32, p, Hints{})
	assert.Equal(t, MaxDelay, got)

	lin := Params{Base: time.Hour, Increment: time.Hour}
	assert.Equal(t, MaxDelay, Delay(failure.StrategyLinearBackoff, math.MaxInt64, lin, Hints{}))
}

func TestDelay_NegativeParamsNeverNegative(t *testing.T) {
	p := Params{Base: -time.Second, Increment: -time.Second, Multiplier: 2}
	for _, s := range failure.Strategies() {
		for attempt := 0; attempt < 5; attempt++ {
			assert.GreaterOrEqual(t, Delay(s, attempt, p, Hints{}), time.Duration(0), "%s attempt %d", s, attempt)
		}
	}
}

// Delays never decrease with attempt count and are constant once capped.
func TestDelay_MonotonicUntilCap(t *testing.T) {
	params := []Params{
		{Base: 5 * time.Second, Multiplier: 2, Cap: 5 * time.Minute},
		{Base: time.Second, Multiplier: 1.5, Cap: 90 * time.Second},
		{Base: 5 * time.Second, Increment: 5 * time.Second, Cap: 5 * time.Minute},
		{Base: 0, Increment: 3 * time.Second, Cap: time.Minute},
	}
	strategies := []failure.Strategy{failure.StrategyExponentialBackoff, failure.StrategyLinearBackoff}

	for _, s := range strategies {
		for _, p := range params {
			prev := time.Duration(-1)
			capped := false
			for attempt := 0; attempt < 200; attempt++ {
				d := Delay(s, attempt, p, Hints{})
				assert.GreaterOrEqual(t, d, prev, "%s %+v attempt %d", s, p, attempt)
				assert.LessOrEqual(t, d, p.Cap)
				if capped {
					assert.Equal(t, p.Cap, d, "%s %+v should stay capped", s, p)
				}
				capped = d == p.Cap
				prev = d
			}
		}
	}
}

// =============================================================================
// Jitter Tests
// =============================================================================

func TestJitter_Bounded(t *testing.T) {
	delay := 5 * time.Second
	for seed := uint64(0); seed < 1000; seed++ {
		got := Jitter(delay, 0.2, seed*7919)
		assert.GreaterOrEqual(t, got, 4*time.Second)
		assert.LessOrEqual(t, got, 6*time.Second)
	}
}

func TestJitter_Deterministic(t *testing.T) {
	seed := Seed("task-1", 0, "transient.timeout")
	assert.Equal(t, Jitter(5*time.Second, 0.2, seed), Jitter(5*time.Second, 0.2, seed))
	assert.Equal(t, seed, Seed("task-1", 0, "transient.timeout"))
	assert.NotEqual(t, seed, Seed("task-1", 1, "transient.timeout"))
}

func TestJitter_Varies(t *testing.T) {
	results := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		results[Jitter(time.Second, 0.2, Seed("task", i, "p"))] = true
	}
	assert.Greater(t, len(results), 10)
}

func TestJitter_NoOp(t *testing.T) {
	assert.Equal(t, time.Second, Jitter(time.Second, 0, 42))
	assert.Equal(t, time.Duration(0), Jitter(0, 0.2, 42))
	assert.Equal(t, time.Duration(0), Jitter(-time.Second, 0.2, 42))
}

func TestJittered_OnlyExponential(t *testing.T) {
	p := Params{Base: 5 * time.Second, Multiplier: 2, Increment: 5 * time.Second, Cap: 5 * time.Minute, Jitter: 0.2}
	seed := Seed("task", 1, "p")

	assert.Equal(t, 10*time.Second, Jittered(failure.StrategyLinearBackoff, 1, p, Hints{}, seed))
	assert.Equal(t, 5*time.Second, Jittered(failure.StrategyFixedBackoff, 1, p, Hints{}, seed))

	exp := Jittered(failure.StrategyExponentialBackoff, 1, p, Hints{}, seed)
	assert.InDelta(t, float64(10*time.Second), float64(exp), float64(2*time.Second))
}

func TestJittered_NeverExceedsCap(t *testing.T) {
	p := Params{Base: 5 * time.Second, Multiplier: 2, Cap: 5 * time.Minute, Jitter: 0.5}
	for i := 0; i < 200; i++ {
		for attempt := 0; attempt < 10; attempt++ {
			got := Jittered(failure.StrategyExponentialBackoff, attempt, p, Hints{}, Seed("t", i, "p"))
			assert.LessOrEqual(t, got, p.Cap)
			assert.GreaterOrEqual(t, got, time.Duration(0))
		}
	}
}

func TestJittered_ConstantOnceCapped(t *testing.T) {
	p := Params{Base: 5 * time.Second, Multiplier: 2, Cap: 5 * time.Minute, Jitter: 0.5}
	for attempt := 6; attempt < 40; attempt++ {
		got := Jittered(failure.StrategyExponentialBackoff, attempt, p, Hints{}, Seed("task-42", attempt, "p"))
		assert.Equal(t, p.Cap, got, "attempt %d", attempt)
	}
}

func TestJittered_MonotonicInAttempt(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		last time.Duration
	}{
		{"slow growth", Params{Base: 5 * time.Second, Multiplier: 1.2, Cap: 5 * time.Minute, Jitter: 0.2}, 5 * time.Minute},
		{"doubling", Params{Base: 5 * time.Second, Multiplier: 2, Cap: 5 * time.Minute, Jitter: 0.2}, 5 * time.Minute},
		{"wide jitter", Params{Base: time.Second, Multiplier: 1.5, Cap: time.Hour, Jitter: 1}, time.Hour},
		{"flat", Params{Base: 3 * time.Second, Multiplier: 1, Cap: time.Minute, Jitter: 0.3}, 3 * time.Second},
		{"default multiplier", Params{Base: 2 * time.Second, Cap: 2 * time.Minute, Jitter: 0.5}, 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, task := range []string{"a", "b", "task-42", "render"} {
				prev := time.Duration(0)
				for attempt := 0; attempt < 60; attempt++ {
					got := Jittered(failure.StrategyExponentialBackoff, attempt, tt.p, Hints{}, Seed(task, attempt, "p"))
					if got < prev {
						t.Fatalf("task %s attempt %d: %v < previous %v", task, attempt, got, prev)
					}
					prev = got
				}
				assert.Equal(t, tt.last, prev)
			}
		})
	}
}
