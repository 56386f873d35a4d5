// Package metrics exposes Prometheus collectors for recovery decisions, the
// advisory classifier and circuit trips.
//
// Collectors are registered on an injected prometheus.Registerer so tests
// and embedders can keep them off the global registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/adalundhe/rebound/core/advisory"
	"github.com/adalundhe/rebound/core/circuit"
	"github.com/adalundhe/rebound/core/engine"
	"github.com/adalundhe/rebound/core/failure"
)

const namespace = "rebound"

// Collector holds every rebound metric.
type Collector struct {
	decisions       *prometheus.CounterVec
	terminal        *prometheus.CounterVec
	decisionLatency prometheus.Histogram
	decisionDelay   *prometheus.HistogramVec
	confidence      prometheus.Histogram
	advisoryStatus  *prometheus.CounterVec
	advisoryCalls   *prometheus.CounterVec
	advisoryLatency *prometheus.HistogramVec
	circuitTrips    *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	libraryReloads  prometheus.Counter
	libraryPatterns prometheus.Gauge
	registerer      prometheus.Registerer
}

// New registers the collectors on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		registerer: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Recovery decisions by strategy, pattern category and pattern id.",
		}, []string{"strategy", "category", "pattern"}),
		terminal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_decisions_total",
			Help:      "Decisions that ended the task or handed it off, by exit state.",
		}, []string{"state"}),
		decisionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent producing a decision.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5},
		}),
		decisionDelay: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_delay_seconds",
			Help:      "Retry delay handed back to callers, by strategy.",
			Buckets:   []float64{0, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"strategy"}),
		confidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_confidence",
			Help:      "Final confidence of decisions.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		advisoryStatus: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_advisory_total",
			Help:      "What happened on the advisory path of each decision.",
		}, []string{"status"}),
		advisoryCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_calls_total",
			Help:      "Advisory classifier calls by backend, outcome and cache hit.",
		}, []string{"backend", "outcome", "cached"}),
		advisoryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "advisory_duration_seconds",
			Help:      "Advisory classifier call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		circuitTrips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_trips_total",
			Help:      "Circuit trips by resource class.",
		}, []string{"resource_class"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Retry outcomes reported by callers.",
		}, []string{"resource_class", "result"}),
		libraryReloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_library_reloads_total",
			Help:      "Successful pattern library reloads.",
		}),
		libraryPatterns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pattern_library_patterns",
			Help:      "Patterns in the active library.",
		}),
	}
}

var _ engine.Recorder = (*Collector)(nil)

// ObserveDecision implements engine.Recorder.
func (c *Collector) ObserveDecision(d failure.Decision, category string, status engine.AdvisoryStatus, elapsed time.Duration) {
	c.decisions.WithLabelValues(d.Strategy.String(), category, d.PatternID).Inc()
	if d.Terminal {
		c.terminal.WithLabelValues(string(d.State)).Inc()
	}
	c.decisionLatency.Observe(elapsed.Seconds())
	c.decisionDelay.WithLabelValues(d.Strategy.String()).Observe(d.Delay.Seconds())
	c.confidence.Observe(d.Confidence)
	c.advisoryStatus.WithLabelValues(string(status)).Inc()
}

// ObserveAdvisory matches advisory.Observer.
func (c *Collector) ObserveAdvisory(backend string, outcome advisory.Outcome, cached bool, elapsed time.Duration) {
	hit := "false"
	if cached {
		hit = "true"
	}
	c.advisoryCalls.WithLabelValues(backend, outcome.String(), hit).Inc()
	if !cached {
		c.advisoryLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
	}
}

// ObserveTrip matches circuit.TripListener.
func (c *Collector) ObserveTrip(s circuit.State) {
	c.circuitTrips.WithLabelValues(s.ResourceClass).Inc()
}

// ObserveOutcome counts an outcome reported for a resource class.
func (c *Collector) ObserveOutcome(resourceClass string, succeeded bool) {
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	c.outcomes.WithLabelValues(resourceClass, result).Inc()
}

// ObserveReload records a library swap.
func (c *Collector) ObserveReload(patterns int) {
	c.libraryReloads.Inc()
	c.libraryPatterns.Set(float64(patterns))
}

// SetPatterns sets the active pattern count without counting a reload.
func (c *Collector) SetPatterns(patterns int) {
	c.libraryPatterns.Set(float64(patterns))
}

// WatchCircuits exports gauges computed from the tracker at scrape time.
func (c *Collector) WatchCircuits(t *circuit.Tracker) {
	f := promauto.With(c.registerer)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuits_open",
		Help:      "Resource classes whose circuit is currently tripped.",
	}, func() float64 {
		open := 0
		for _, s := range t.Snapshots() {
			if s.Tripped {
				open++
			}
		}
		return float64(open)
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuits_tracked",
		Help:      "Resource classes with circuit state.",
	}, func() float64 {
		return float64(t.Len())
	})
}
