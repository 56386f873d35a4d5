package errors

import (
	"context"
	"errors"
	"time"

	"github.com/adalundhe/rebound/core/failure"
)

// SignalFromError builds a failure signal for a failed task attempt.
// Hints carried by a ClassifiedError anywhere in the chain are copied onto
// the signal. Context cancellation is reported with the cancelled hint and
// deadline expiry with the transient hint.
func SignalFromError(err error, taskID string, attempt int, resourceClass string, observedAt time.Time) failure.Signal {
	sig := failure.Signal{
		TaskID:        taskID,
		AttemptCount:  attempt,
		ResourceClass: resourceClass,
		ObservedAt:    observedAt,
	}
	if err == nil {
		return sig
	}
	sig.RawMessage = err.Error()

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		populateFromClassified(&sig, ce)
		return sig
	}

	switch {
	case errors.Is(err, context.Canceled):
		sig.KindHint = CategoryCancelled.String()
	case errors.Is(err, context.DeadlineExceeded):
		sig.KindHint = CategoryTransient.String()
	}
	return sig
}

func populateFromClassified(sig *failure.Signal, ce *ClassifiedError) {
	if ce.Category != CategoryUnknown {
		sig.KindHint = ce.Category.String()
	}
	sig.StatusCode = ce.StatusCode
	sig.RetryAfter = ce.RetryAfter
	if sig.ResourceClass == "" {
		sig.ResourceClass = ce.ResourceClass
	}
	if len(ce.Context) > 0 {
		sig.Metadata = copyContextMap(ce.Context)
	}
}

func copyContextMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
