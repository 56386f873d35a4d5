// Package advisory wraps an external classification service that can
// suggest a recovery strategy when local pattern matching is not confident.
//
// The service sits behind an explicit asynchronous boundary: Adapter bounds
// every call with a timeout, recovers panics, trips a breaker around a
// failing backend and never returns an error to its caller.
package advisory

import (
	"context"
	"errors"

	"github.com/adalundhe/rebound/core/failure"
	"github.com/adalundhe/rebound/core/pattern"
)

// ErrNoRecommendation is returned by backends that produced no usable answer.
var ErrNoRecommendation = errors.New("advisory: no recommendation")

// Request is what the classifier sees for one failure.
type Request struct {
	Signal     failure.Signal      `json:"signal"`
	Candidates []pattern.Candidate `json:"candidates"`
	History    *failure.History    `json:"history,omitempty"`
}

// Recommendation is a classifier answer.
type Recommendation struct {
	// PatternID optionally names a library pattern the failure belongs to.
	PatternID  string           `json:"pattern_id,omitempty"`
	Strategy   failure.Strategy `json:"strategy"`
	Confidence float64          `json:"confidence"`
	Rationale  string           `json:"rationale,omitempty"`
}

// Classifier is an advisory backend.
type Classifier interface {
	Advise(ctx context.Context, req Request) (*Recommendation, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, req Request) (*Recommendation, error)

// Advise implements Classifier.
func (f ClassifierFunc) Advise(ctx context.Context, req Request) (*Recommendation, error) {
	return f(ctx, req)
}

// Outcome describes how an advisory call ended.
type Outcome string

const (
	// OutcomeOK means a sanitized recommendation was returned.
	OutcomeOK Outcome = "ok"

	// OutcomeUnavailable means no backend is configured or its breaker is
	// open.
	OutcomeUnavailable Outcome = "unavailable"

	// OutcomeTimeout means the call ran past its deadline.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeError means the backend failed, panicked or answered with
	// something unusable.
	OutcomeError Outcome = "error"
)

func (o Outcome) String() string {
	return string(o)
}
