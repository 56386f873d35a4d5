// Package circuit tracks consecutive failures per resource class and trips a
// circuit when a class keeps failing.
//
// Each resource class owns a cell holding an immutable State behind an
// atomic pointer. Updates are compare-and-swap loops, so there is no global
// lock and readers never block writers.
package circuit

import (
	"fmt"
	"time"
)

// Config configures trip behavior.
type Config struct {
	// Threshold is the consecutive failure count that trips the circuit.
	Threshold int `yaml:"threshold"`

	// Window bounds how far apart consecutive failures may be. Zero means
	// failures are counted regardless of spacing.
	Window time.Duration `yaml:"window"`

	// TripDuration is how long a tripped circuit stays open.
	TripDuration time.Duration `yaml:"trip_duration"`

	// MaxClasses bounds the number of tracked resource classes. Classes
	// beyond the bound share one overflow cell.
	MaxClasses int `yaml:"max_classes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:    5,
		Window:       0,
		TripDuration: 30 * time.Minute,
		MaxClasses:   4096,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("circuit threshold must be at least 1, got %d", c.Threshold)
	}
	if c.Window < 0 {
		return fmt.Errorf("circuit window must not be negative, got %s", c.Window)
	}
	if c.TripDuration <= 0 {
		return fmt.Errorf("circuit trip duration must be positive, got %s", c.TripDuration)
	}
	if c.MaxClasses < 1 {
		return fmt.Errorf("circuit max classes must be at least 1, got %d", c.MaxClasses)
	}
	return nil
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = def.Threshold
	}
	if c.Window < 0 {
		c.Window = 0
	}
	if c.TripDuration <= 0 {
		c.TripDuration = def.TripDuration
	}
	if c.MaxClasses <= 0 {
		c.MaxClasses = def.MaxClasses
	}
	return c
}

// State is an immutable snapshot of one resource class.
type State struct {
	ResourceClass       string    `json:"resource_class"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	WindowStart         time.Time `json:"window_start,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
	Tripped             bool      `json:"tripped"`
	TrippedAt           time.Time `json:"tripped_at,omitempty"`
	TripExpiresAt       time.Time `json:"trip_expires_at,omitempty"`
}

// Remaining returns the time left until the trip expires, or zero.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.Tripped {
		return 0
	}
	if d := s.TripExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// expired reports whether a tripped state has run past its expiry.
func (s State) expired(now time.Time) bool {
	return s.Tripped && !now.Before(s.TripExpiresAt)
}

// windowElapsed reports whether the failure window has run out.
func (s State) windowElapsed(now time.Time, window time.Duration) bool {
	if window <= 0 || s.WindowStart.IsZero() {
		return false
	}
	return now.Sub(s.WindowStart) > window
}
