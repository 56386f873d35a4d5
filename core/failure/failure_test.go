package failure

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    time.Duration
	}{
		{"bare seconds", "429 too many requests, retry-after 60", 60 * time.Second},
		{"header form", "rate limited (Retry-After: 30s)", 30 * time.Second},
		{"minutes", "quota hit, retry after 2m", 2 * time.Minute},
		{"spelled unit", "please retry after 5 minutes", 5 * time.Minute},
		{"milliseconds", "retry_after=250ms", 250 * time.Millisecond},
		{"absent", "connection timeout after 30s", 0},
		{"zero", "retry-after 0", 0},
		{"saturates", "retry-after 99999999999999999999h", MaxRetryAfter},
		{"beyond float range", "retry-after " + strings.Repeat("9", 400), MaxRetryAfter},
		{"just over limit", "retry after 1441 minutes", MaxRetryAfter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRetryAfter(tt.message))
		})
	}
}

func TestSignal_SuggestedWaitPrefersStructuredField(t *testing.T) {
	sig := Signal{RawMessage: "retry-after 60", RetryAfter: 5 * time.Second}
	assert.Equal(t, 5*time.Second, sig.SuggestedWait())

	sig.RetryAfter = 1000 * time.Hour
	assert.Equal(t, MaxRetryAfter, sig.SuggestedWait())
}

func TestSignal_Malformed(t *testing.T) {
	assert.True(t, Signal{}.Malformed())
	assert.True(t, Signal{RawMessage: "boom", AttemptCount: -1}.Malformed())
	assert.False(t, Signal{KindHint: "transient"}.Malformed())
	assert.False(t, Signal{StatusCode: 503}.Malformed())
	assert.False(t, Signal{RawMessage: "boom"}.Malformed())
}

func TestSignal_ClassAndAttempt(t *testing.T) {
	assert.Equal(t, DefaultResourceClass, Signal{ResourceClass: "  "}.Class())
	assert.Equal(t, "upstream-api", Signal{ResourceClass: "upstream-api"}.Class())
	assert.Equal(t, 0, Signal{AttemptCount: -4}.Attempt())
	assert.Equal(t, 3, Signal{AttemptCount: 3}.Attempt())
}

func TestStrategy_Classes(t *testing.T) {
	for _, s := range Strategies() {
		assert.True(t, s.Valid(), s)
		assert.NotEqual(t, s.IsRetry(), s.IsTerminal(), "strategy %s must be exactly one of retry or terminal", s)
	}
	assert.False(t, Strategy("bogus").Valid())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Exponential-Backoff")
	require.NoError(t, err)
	assert.Equal(t, StrategyExponentialBackoff, s)

	_, err = ParseStrategy("retry_forever")
	assert.Error(t, err)
}

func TestExitState(t *testing.T) {
	assert.Equal(t, StateRetryScheduled, ExitState(StrategyLinearBackoff))
	assert.Equal(t, StateRetryScheduled, ExitState(StrategyCircuitBreaker))
	assert.Equal(t, StateEscalated, ExitState(StrategyEscalate))
	assert.Equal(t, StateSkipped, ExitState(StrategySkip))
	assert.Equal(t, StatePermanentlyFailed, ExitState(StrategyPermanentlyFailed))
}

func TestDecisionID_Stable(t *testing.T) {
	sig := Signal{TaskID: "t-1", AttemptCount: 2, ResourceClass: "render-worker"}
	a := DecisionID(sig, "transient.timeout")
	b := DecisionID(sig, "transient.timeout")
	assert.Equal(t, a, b)

	sig.AttemptCount = 3
	assert.NotEqual(t, a, DecisionID(sig, "transient.timeout"))
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.5))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
	assert.Equal(t, 0.0, ClampConfidence(math.NaN()))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
}

func TestHistory_NilSafe(t *testing.T) {
	var h *History
	_, ok := h.Stats("x")
	assert.False(t, ok)
	assert.False(t, h.IsTerminated("x"))

	h = &History{Terminated: map[string]bool{"x": true}}
	assert.True(t, h.IsTerminated("x"))
}
