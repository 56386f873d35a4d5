package backoff

import (
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/adalundhe/rebound/core/failure"
)

// Seed derives a jitter seed from the identity of a decision.
func Seed(taskID string, attempt int, patternID string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(taskID)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(strconv.Itoa(attempt))
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(patternID)
	return d.Sum64()
}

// Jitter offsets delay by up to ±fraction of itself. The offset is derived
// from seed, so equal seeds give equal results. The result is never negative.
func Jitter(delay time.Duration, fraction float64, seed uint64) time.Duration {
	if delay <= 0 || fraction <= 0 {
		return nonNegative(delay)
	}
	if fraction > 1 {
		fraction = 1
	}

	// Map the seed onto [-1, 1).
	unit := float64(mix(seed)>>11)/float64(uint64(1)<<53)*2 - 1
	offset := float64(delay) * fraction * unit
	return fromFloat(float64(delay) + offset)
}

// Jittered returns Delay with jitter applied. Only exponential backoff is
// jittered. A capped delay is returned as is, so delays stay constant once
// they reach the cap, and the jitter fraction is bounded so that delays stay
// non-decreasing in attempt for any seed.
func Jittered(strategy failure.Strategy, attempt int, p Params, h Hints, seed uint64) time.Duration {
	delay := Delay(strategy, attempt, p, h)
	if strategy != failure.StrategyExponentialBackoff || p.Jitter <= 0 {
		return delay
	}
	if delay >= MaxDelay || (p.Cap > 0 && delay >= p.Cap) {
		return delay
	}
	return capDelay(Jitter(delay, monotonicFraction(p), seed), p.Cap)
}

// monotonicFraction limits the jitter fraction for exponential growth by m.
// Adjacent attempts cannot cross when d(1+f) <= m·d(1-f), that is when
// f <= (m-1)/(m+1).
func monotonicFraction(p Params) float64 {
	m := p.Multiplier
	if m < 1 {
		m = DefaultMultiplier
	}
	return math.Min(p.Jitter, (m-1)/(m+1))
}

// mix is the splitmix64 finalizer. Seeds that differ in a few bits still
// spread across the whole range.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
