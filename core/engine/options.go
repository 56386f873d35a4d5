package engine

import (
	"log/slog"
	"time"

	"github.com/adalundhe/rebound/core/advisory"
)

// Option configures an Engine.
type Option func(*Engine)

func WithConfig(config Config) Option {
	return func(e *Engine) {
		e.config = config
	}
}

// WithAdvisor enables the advisory path. A nil adapter leaves it disabled.
func WithAdvisor(a *advisory.Adapter) Option {
	return func(e *Engine) {
		e.advisor = a
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(r Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// WithClock replaces time.Now for decision timestamps and trip remaining
// time. Pass the same clock to the circuit tracker.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
