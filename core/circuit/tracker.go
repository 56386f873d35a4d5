package circuit

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// OverflowClass names the shared cell used once MaxClasses is reached.
const OverflowClass = "_overflow"

// TripListener is called after a circuit trips.
type TripListener func(State)

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithTripListener registers a listener invoked after every trip.
func WithTripListener(fn TripListener) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.listeners = append(t.listeners, fn)
		}
	}
}

// Tracker manages circuit state for many resource classes.
type Tracker struct {
	config    Config
	now       func() time.Time
	listeners []TripListener

	cells    sync.Map // resource class -> *cell
	count    atomic.Int64
	overflow *cell
}

type cell struct {
	class string
	state atomic.Pointer[State]
}

func newCell(class string) *cell {
	c := &cell{class: class}
	c.state.Store(&State{ResourceClass: class})
	return c
}

// NewTracker creates a tracker. Zero config fields take their defaults.
func NewTracker(config Config, opts ...Option) *Tracker {
	t := &Tracker{
		config:   config.withDefaults(),
		now:      time.Now,
		overflow: newCell(OverflowClass),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.config
}

// lookup returns the cell for class without creating one. Unknown classes
// map to the overflow cell once the registry is full.
func (t *Tracker) lookup(class string) *cell {
	if c, ok := t.cells.Load(class); ok {
		return c.(*cell)
	}
	if t.count.Load() >= int64(t.config.MaxClasses) {
		return t.overflow
	}
	return nil
}

// getOrCreate returns the cell for class, creating it while there is room.
func (t *Tracker) getOrCreate(class string) *cell {
	if c := t.lookup(class); c != nil {
		return c
	}
	if !t.reserveSlot() {
		return t.overflow
	}

	actual, loaded := t.cells.LoadOrStore(class, newCell(class))
	if loaded {
		t.count.Add(-1)
	}
	return actual.(*cell)
}

// reserveSlot claims one registry slot, failing when the bound is reached.
func (t *Tracker) reserveSlot() bool {
	limit := int64(t.config.MaxClasses)
	for {
		n := t.count.Load()
		if n >= limit {
			return false
		}
		if t.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// update applies fn with a compare-and-swap loop and returns the old and new
// states. fn must not mutate its argument.
func (t *Tracker) update(c *cell, fn func(State, time.Time) State) (State, State) {
	for {
		cur := c.state.Load()
		next := fn(*cur, t.now())
		if next == *cur {
			return *cur, next
		}
		if c.state.CompareAndSwap(cur, &next) {
			return *cur, next
		}
	}
}

// RecordOutcome records a success or failure for class and returns the
// resulting state. A success clears the counter of a closed circuit. A
// tripped circuit stays tripped until its trip expires.
func (t *Tracker) RecordOutcome(class string, succeeded bool) State {
	if succeeded {
		c := t.lookup(class)
		if c == nil {
			return State{ResourceClass: class}
		}
		_, next := t.update(c, applySuccess)
		return next
	}

	c := t.getOrCreate(class)
	prev, next := t.update(c, t.applyFailure)
	t.notifyIfTripped(prev, next)
	return next
}

// applySuccess clears s unless it holds an unexpired trip.
func applySuccess(s State, now time.Time) State {
	if s.Tripped && !s.expired(now) {
		return s
	}
	return State{ResourceClass: s.ResourceClass}
}

// applyFailure returns s with one more failure counted at now.
func (t *Tracker) applyFailure(s State, now time.Time) State {
	if s.expired(now) {
		s = State{ResourceClass: s.ResourceClass}
	}
	if !s.Tripped && s.windowElapsed(now, t.config.Window) {
		s.ConsecutiveFailures = 0
	}
	if s.ConsecutiveFailures == 0 {
		s.WindowStart = now
	}
	if s.ConsecutiveFailures < math.MaxInt32 {
		s.ConsecutiveFailures++
	}
	s.LastFailureAt = now
	return t.tripIfDue(s, now)
}

// tripIfDue trips s when the counter reached the threshold.
func (t *Tracker) tripIfDue(s State, now time.Time) State {
	if s.Tripped || s.ConsecutiveFailures < t.config.Threshold {
		return s
	}
	if s.windowElapsed(now, t.config.Window) {
		return s
	}
	s.Tripped = true
	s.TrippedAt = now
	s.TripExpiresAt = now.Add(t.config.TripDuration)
	return s
}

// refresh self-resets an expired trip.
func (t *Tracker) refresh(s State, now time.Time) State {
	if s.expired(now) {
		return State{ResourceClass: s.ResourceClass}
	}
	return s
}

func (t *Tracker) notifyIfTripped(prev, next State) {
	if prev.Tripped || !next.Tripped {
		return
	}
	for _, fn := range t.listeners {
		fn(next)
	}
}

// TripIfThreshold trips the circuit for class when its counter has reached
// the threshold and returns the resulting state.
func (t *Tracker) TripIfThreshold(class string) State {
	c := t.lookup(class)
	if c == nil {
		return State{ResourceClass: class}
	}
	prev, next := t.update(c, func(s State, now time.Time) State {
		return t.tripIfDue(t.refresh(s, now), now)
	})
	t.notifyIfTripped(prev, next)
	return next
}

// Snapshot returns the current state of class. Expired trips are reset as a
// side effect.
func (t *Tracker) Snapshot(class string) State {
	c := t.lookup(class)
	if c == nil {
		return State{ResourceClass: class}
	}
	_, next := t.update(c, t.refresh)
	return next
}

// IsTripped reports whether the circuit for class is open.
func (t *Tracker) IsTripped(class string) bool {
	return t.Snapshot(class).Tripped
}

// Remaining returns the time left on a trip for class, or zero.
func (t *Tracker) Remaining(class string) time.Duration {
	return t.Snapshot(class).Remaining(t.now())
}

// Reset clears all state for class.
func (t *Tracker) Reset(class string) {
	if c := t.lookup(class); c != nil {
		c.state.Store(&State{ResourceClass: c.class})
	}
}

// Snapshots returns the state of every tracked class sorted by name. The
// overflow cell is included once it has seen a failure.
func (t *Tracker) Snapshots() []State {
	var out []State
	t.cells.Range(func(key, _ any) bool {
		out = append(out, t.Snapshot(key.(string)))
		return true
	})

	overflow := t.refresh(*t.overflow.state.Load(), t.now())
	if overflow.ConsecutiveFailures > 0 || overflow.Tripped {
		out = append(out, overflow)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ResourceClass < out[j].ResourceClass
	})
	return out
}

// Len returns the number of tracked classes, excluding overflow.
func (t *Tracker) Len() int {
	return int(t.count.Load())
}
