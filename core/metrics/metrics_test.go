package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/rebound/core/advisory"
	"github.com/adalundhe/rebound/core/circuit"
	"github.com/adalundhe/rebound/core/engine"
	"github.com/adalundhe/rebound/core/failure"
)

func TestObserveDecision(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveDecision(failure.Decision{
		PatternID:  "transient.timeout",
		Strategy:   failure.StrategyExponentialBackoff,
		Delay:      5 * time.Second,
		Confidence: 0.9,
		State:      failure.StateRetryScheduled,
	}, "transient", engine.AdvisoryUnused, time.Millisecond)
	c.ObserveDecision(failure.Decision{
		PatternID: "configuration_defect.missing_field",
		Strategy:  failure.StrategyEscalate,
		Terminal:  true,
		State:     failure.StateEscalated,
	}, "configuration_defect", engine.AdvisorySkipped, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.decisions.WithLabelValues("exponential_backoff", "transient", "transient.timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.terminal.WithLabelValues("escalated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.advisoryStatus.WithLabelValues("unused")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.decisions))
}

func TestObserveAdvisory(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveAdvisory("anthropic", advisory.OutcomeOK, false, 300*time.Millisecond)
	c.ObserveAdvisory("anthropic", advisory.OutcomeOK, true, 0)
	c.ObserveAdvisory("anthropic", advisory.OutcomeTimeout, false, 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.advisoryCalls.WithLabelValues("anthropic", "ok", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.advisoryCalls.WithLabelValues("anthropic", "ok", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.advisoryCalls.WithLabelValues("anthropic", "timeout", "false")))
}

func TestTripListenerAndCircuitGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	tracker := circuit.NewTracker(circuit.Config{Threshold: 2}, circuit.WithTripListener(c.ObserveTrip))
	c.WatchCircuits(tracker)

	tracker.RecordOutcome("gpu", false)
	tracker.RecordOutcome("gpu", false)
	tracker.RecordOutcome("db", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.circuitTrips.WithLabelValues("gpu")))

	expected := `
# HELP rebound_circuits_open Resource classes whose circuit is currently tripped.
# TYPE rebound_circuits_open gauge
rebound_circuits_open 1
# HELP rebound_circuits_tracked Resource classes with circuit state.
# TYPE rebound_circuits_tracked gauge
rebound_circuits_tracked 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"rebound_circuits_open", "rebound_circuits_tracked"))
}

func TestOutcomesAndReloads(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveOutcome("api", true)
	c.ObserveOutcome("api", false)
	c.ObserveOutcome("api", false)
	c.SetPatterns(10)
	c.ObserveReload(12)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.outcomes.WithLabelValues("api", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.libraryReloads))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.libraryPatterns))
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
