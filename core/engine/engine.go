// Package engine turns failure signals into recovery decisions.
//
// The engine is stateless apart from the circuit tracker it is given. Each
// Decide call runs the state machine analyzing -> deciding -> exit state
// once and always returns a decision, even when an internal step fails.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adalundhe/rebound/core/advisory"
	"github.com/adalundhe/rebound/core/backoff"
	"github.com/adalundhe/rebound/core/circuit"
	rerrors "github.com/adalundhe/rebound/core/errors"
	"github.com/adalundhe/rebound/core/failure"
	"github.com/adalundhe/rebound/core/pattern"
)

// AdvisoryStatus records what happened on the advisory path of a decision.
type AdvisoryStatus string

const (
	AdvisoryUsed        AdvisoryStatus = "used"
	AdvisoryUnused      AdvisoryStatus = "unused"
	AdvisoryUnavailable AdvisoryStatus = "unavailable"
	AdvisoryTimeout     AdvisoryStatus = "timeout"
	AdvisoryError       AdvisoryStatus = "error"
	AdvisorySkipped     AdvisoryStatus = "skipped"
)

// Recorder receives one observation per decision.
type Recorder interface {
	ObserveDecision(d failure.Decision, category string, status AdvisoryStatus, elapsed time.Duration)
}

// Engine is safe for concurrent use.
type Engine struct {
	config  Config
	matcher *pattern.Matcher
	tracker *circuit.Tracker
	advisor *advisory.Adapter
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an engine over a pattern source and a circuit tracker. A nil
// tracker gets a private one with default configuration.
func New(source pattern.Source, tracker *circuit.Tracker, opts ...Option) *Engine {
	e := &Engine{
		config:  DefaultConfig(),
		tracker: tracker,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.config = e.config.withDefaults()
	if e.tracker == nil {
		e.tracker = circuit.NewTracker(circuit.DefaultConfig(), circuit.WithClock(e.now))
	}
	e.matcher = pattern.NewMatcher(source, pattern.WithDecay(e.config.HistoryDecay))
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Tracker returns the circuit tracker the engine reads.
func (e *Engine) Tracker() *circuit.Tracker {
	return e.tracker
}

// Library returns the pattern library the next decision will use.
func (e *Engine) Library() *pattern.Library {
	return e.matcher.Library()
}

// RecordOutcome feeds the result of an applied retry back to the circuit
// tracker.
func (e *Engine) RecordOutcome(resourceClass string, succeeded bool) circuit.State {
	if strings.TrimSpace(resourceClass) == "" {
		resourceClass = failure.DefaultResourceClass
	}
	return e.tracker.RecordOutcome(resourceClass, succeeded)
}

// plan is the working state of one decision.
type plan struct {
	pattern    pattern.Pattern
	confidence float64
	strategy   failure.Strategy
	params     backoff.Params
	status     AdvisoryStatus
	notes      []string
	advice     string
	downgraded bool
}

// Decide returns the recovery decision for one failure. It never fails: any
// internal fault degrades to the unknown pattern.
func (e *Engine) Decide(ctx context.Context, sig failure.Signal, history *failure.History) (d failure.Decision) {
	start := time.Now()
	category := rerrors.CategoryUnknown.String()
	status := AdvisorySkipped

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("decision panicked, falling back to unknown pattern",
				"task_id", sig.TaskID, "panic", r)
			d = e.fallback(sig, history, fmt.Sprintf("recovered=%v", r))
			category = rerrors.CategoryUnknown.String()
			status = AdvisorySkipped
		}
		e.observe(ctx, sig, d, category, status, time.Since(start))
	}()

	m := newMachine()
	candidates := e.candidates(sig, history)
	top := candidates[0]

	state := e.tracker.TripIfThreshold(sig.Class())
	now := e.now()
	remaining := state.Remaining(now)

	p := &plan{
		pattern:    top.Pattern,
		confidence: failure.ClampConfidence(top.Confidence),
		strategy:   top.Pattern.Strategy,
	}

	if err := m.to(failure.StateDeciding); err != nil {
		panic(err)
	}

	switch {
	case state.Tripped && remaining > 0:
		p.strategy = failure.StrategyCircuitBreaker
		p.status = AdvisorySkipped
		p.notes = append(p.notes, fmt.Sprintf("circuit=tripped(%s remaining)", remaining.Round(time.Second)))
	case p.confidence >= e.config.HighConfidence:
		p.status = AdvisoryUnused
	case e.advisor == nil:
		p.status = AdvisoryUnavailable
	default:
		e.consult(ctx, sig, history, candidates, p)
	}

	e.enforce(sig, history, p)
	p.params = e.paramsFor(p)

	delay := backoff.Jittered(p.strategy, sig.Attempt(), p.params, backoff.Hints{
		SuggestedWait:    sig.SuggestedWait(),
		CircuitRemaining: remaining,
	}, backoff.Seed(sig.TaskID, sig.Attempt(), p.pattern.ID))

	exit := failure.ExitState(p.strategy)
	if err := m.to(exit); err != nil {
		panic(err)
	}

	category = p.pattern.Category.String()
	status = p.status
	return failure.Decision{
		ID:           failure.DecisionID(sig, p.pattern.ID),
		TaskID:       sig.TaskID,
		PatternID:    p.pattern.ID,
		Strategy:     p.strategy,
		Delay:        delay,
		Confidence:   failure.ClampConfidence(p.confidence),
		Rationale:    rationale(p),
		Terminal:     p.strategy.IsTerminal(),
		AdvisoryUsed: p.status == AdvisoryUsed,
		State:        m.state,
		DecidedAt:    now,
	}
}

// candidates runs the matcher and replaces the library's unknown fallback
// with the configured one.
func (e *Engine) candidates(sig failure.Signal, history *failure.History) []pattern.Candidate {
	candidates := e.matcher.Match(sig, history)
	for i := range candidates {
		if candidates[i].Pattern.Synthetic() {
			candidates[i].Pattern = e.unknownPattern()
			candidates[i].Confidence = e.config.Unknown.Confidence
		}
	}
	return candidates
}

func (e *Engine) unknownPattern() pattern.Pattern {
	p := pattern.UnknownPattern()
	p.BaseConfidence = e.config.Unknown.Confidence
	p.MaxAttempts = e.config.Unknown.MaxAttempts
	p.Params = e.config.Unknown.Params
	return p
}

// consult asks the advisor and adopts its answer when it is at least as
// confident as the matcher.
func (e *Engine) consult(ctx context.Context, sig failure.Signal, history *failure.History, candidates []pattern.Candidate, p *plan) {
	k := e.config.TopK
	if k > len(candidates) {
		k = len(candidates)
	}

	rec, outcome := e.advisor.Advise(ctx, advisory.Request{
		Signal:     sig,
		Candidates: candidates[:k],
		History:    history,
	})

	switch outcome {
	case advisory.OutcomeOK:
	case advisory.OutcomeTimeout:
		p.status = AdvisoryTimeout
		return
	case advisory.OutcomeUnavailable:
		p.status = AdvisoryUnavailable
		return
	default:
		p.status = AdvisoryError
		return
	}

	if rec.Confidence < p.confidence || !rec.Strategy.Valid() {
		p.status = AdvisoryUnused
		return
	}

	if named, ok := e.lookup(rec.PatternID, candidates); ok {
		p.pattern = named
	}
	p.strategy = rec.Strategy
	p.confidence = rec.Confidence
	p.advice = rec.Rationale
	p.status = AdvisoryUsed
}

// lookup resolves a pattern id named by the advisor.
func (e *Engine) lookup(id string, candidates []pattern.Candidate) (pattern.Pattern, bool) {
	if id == "" {
		return pattern.Pattern{}, false
	}
	for _, c := range candidates {
		if c.Pattern.ID == id {
			return c.Pattern, true
		}
	}
	if id == pattern.UnknownID {
		return e.unknownPattern(), true
	}
	if lib := e.matcher.Library(); lib != nil {
		return lib.Get(id)
	}
	return pattern.Pattern{}, false
}

// enforce applies the rules that hold regardless of where the strategy came
// from: immediate retries need high confidence, retries stop at the attempt
// ceiling, and escalation needs somewhere to escalate to.
func (e *Engine) enforce(sig failure.Signal, history *failure.History, p *plan) {
	if p.strategy == failure.StrategyImmediateRetry && p.confidence < e.config.HighConfidence {
		p.strategy = failure.StrategyFixedBackoff
		p.downgraded = true
		p.notes = append(p.notes, "downgraded=immediate_retry")
	}

	if p.strategy.IsRetry() {
		switch {
		case history.IsTerminated(p.pattern.ID):
			p.strategy = e.ceilingStrategy()
			p.notes = append(p.notes, "ceiling=terminated")
		case p.pattern.MaxAttempts > 0 && sig.Attempt() >= p.pattern.MaxAttempts:
			p.strategy = e.ceilingStrategy()
			p.notes = append(p.notes, fmt.Sprintf("ceiling=reached(attempt %d >= max %d)", sig.Attempt(), p.pattern.MaxAttempts))
		}
	}

	if p.strategy == failure.StrategyEscalate && !e.config.EscalationAvailable {
		p.strategy = failure.StrategyPermanentlyFailed
		p.notes = append(p.notes, "escalation=unavailable")
	}
}

func (e *Engine) ceilingStrategy() failure.Strategy {
	if e.config.EscalationAvailable {
		return failure.StrategyEscalate
	}
	return failure.StrategyPermanentlyFailed
}

// paramsFor picks backoff parameters: the pattern's own when the strategy is
// the pattern's, the pattern's base delay for a downgraded immediate retry,
// otherwise the configured defaults for the strategy.
func (e *Engine) paramsFor(p *plan) backoff.Params {
	own := p.pattern.Params
	switch {
	case p.strategy == p.pattern.Strategy && own != (backoff.Params{}):
		return own
	case p.downgraded && own.Base > 0:
		return backoff.Params{Base: own.Base, Cap: own.Cap}
	}
	if d, ok := e.config.StrategyDefaults[p.strategy]; ok {
		return d
	}
	return own
}

// fallback builds the unknown-pattern decision without touching the matcher,
// the tracker or the advisor.
func (e *Engine) fallback(sig failure.Signal, history *failure.History, note string) failure.Decision {
	p := &plan{
		pattern:    e.unknownPattern(),
		confidence: failure.ClampConfidence(e.config.Unknown.Confidence),
		status:     AdvisorySkipped,
		notes:      []string{note},
	}
	p.strategy = p.pattern.Strategy
	e.enforce(sig, history, p)
	p.params = e.paramsFor(p)

	return failure.Decision{
		ID:         failure.DecisionID(sig, p.pattern.ID),
		TaskID:     sig.TaskID,
		PatternID:  p.pattern.ID,
		Strategy:   p.strategy,
		Delay:      backoff.Delay(p.strategy, sig.Attempt(), p.params, backoff.Hints{}),
		Confidence: p.confidence,
		Rationale:  rationale(p),
		Terminal:   p.strategy.IsTerminal(),
		State:      failure.ExitState(p.strategy),
		DecidedAt:  e.now(),
	}
}

func rationale(p *plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pattern=%s category=%s strategy=%s confidence=%.2f advisory=%s",
		p.pattern.ID, p.pattern.Category, p.strategy, p.confidence, p.status)
	for _, n := range p.notes {
		b.WriteByte(' ')
		b.WriteString(n)
	}
	if p.advice != "" {
		fmt.Fprintf(&b, " advisor=%q", p.advice)
	}
	return b.String()
}

func (e *Engine) observe(ctx context.Context, sig failure.Signal, d failure.Decision, category string, status AdvisoryStatus, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveDecision(d, category, status, elapsed)
	}
	e.logger.LogAttrs(ctx, slog.LevelInfo, "recovery decision",
		slog.String("decision_id", d.ID),
		slog.String("task_id", d.TaskID),
		slog.String("resource_class", sig.Class()),
		slog.Int("attempt", sig.Attempt()),
		slog.String("pattern", d.PatternID),
		slog.String("strategy", d.Strategy.String()),
		slog.Duration("delay", d.Delay),
		slog.Float64("confidence", d.Confidence),
		slog.String("advisory", string(status)),
		slog.String("state", string(d.State)),
	)
}
