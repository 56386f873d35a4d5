package failure

import (
	"fmt"
	"time"
)

// Outcome is the eventual result of an applied recovery decision.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// ParseOutcome parses an outcome name.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomePending, OutcomeSucceeded, OutcomeFailed:
		return o, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// Attempt records one applied decision. Attempts are owned by the caller's
// history store; the engine only ever sees summaries of them.
type Attempt struct {
	ID            string    `json:"id"`
	TaskID        string    `json:"task_id"`
	PatternID     string    `json:"pattern_id"`
	Strategy      Strategy  `json:"strategy"`
	Confidence    float64   `json:"confidence"`
	AttemptCount  int       `json:"attempt_count"`
	ResourceClass string    `json:"resource_class"`
	DecidedAt     time.Time `json:"decided_at"`
	Outcome       Outcome   `json:"outcome"`
}

// AttemptFromDecision builds the pending attempt record a caller appends after
// applying a decision.
func AttemptFromDecision(id string, sig Signal, d Decision) Attempt {
	return Attempt{
		ID:            id,
		TaskID:        d.TaskID,
		PatternID:     d.PatternID,
		Strategy:      d.Strategy,
		Confidence:    d.Confidence,
		AttemptCount:  sig.Attempt(),
		ResourceClass: sig.Class(),
		DecidedAt:     d.DecidedAt,
		Outcome:       OutcomePending,
	}
}
