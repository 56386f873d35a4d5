package failure

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultResourceClass is used when a signal carries no resource class.
const DefaultResourceClass = "default"

// Signal is the normalized description of a single task execution failure.
// It is created once per failure event and never modified afterwards.
type Signal struct {
	RawMessage    string            `json:"raw_message"`
	KindHint      string            `json:"error_kind_hint,omitempty"`
	TaskID        string            `json:"task_id"`
	AttemptCount  int               `json:"attempt_count"`
	ResourceClass string            `json:"resource_class"`
	ObservedAt    time.Time         `json:"observed_at"`
	RetryAfter    time.Duration     `json:"retry_after,omitempty"`
	StatusCode    int               `json:"status_code,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Malformed reports whether the signal lacks enough information to be
// classified by pattern matching.
func (s Signal) Malformed() bool {
	if s.AttemptCount < 0 {
		return true
	}
	return strings.TrimSpace(s.RawMessage) == "" && strings.TrimSpace(s.KindHint) == "" && s.StatusCode == 0
}

// Class returns the resource class, falling back to DefaultResourceClass.
func (s Signal) Class() string {
	class := strings.TrimSpace(s.ResourceClass)
	if class == "" {
		return DefaultResourceClass
	}
	return class
}

// Attempt returns the attempt count clamped to zero.
func (s Signal) Attempt() int {
	if s.AttemptCount < 0 {
		return 0
	}
	return s.AttemptCount
}

// Hint returns the normalized kind hint.
func (s Signal) Hint() string {
	return strings.ToLower(strings.TrimSpace(s.KindHint))
}

// MaxRetryAfter bounds any server-suggested wait.
const MaxRetryAfter = 24 * time.Hour

var retryAfterPattern = regexp.MustCompile(`(?i)retry[-_ ]?after["']?\s*[:=]?\s*(\d+(?:\.\d+)?)\s*(ms|s|sec|secs|seconds?|m|min|mins|minutes?|h)?\b`)

// SuggestedWait returns the server-suggested wait carried by the signal.
// The structured RetryAfter field wins; otherwise the raw message is scanned
// for a retry-after phrase. Bare numbers are seconds. The result never
// exceeds MaxRetryAfter.
func (s Signal) SuggestedWait() time.Duration {
	if s.RetryAfter > 0 {
		return min(s.RetryAfter, MaxRetryAfter)
	}
	return ParseRetryAfter(s.RawMessage)
}

// ParseRetryAfter extracts a retry-after duration from free text.
// Returns zero when no hint is present and saturates at MaxRetryAfter.
func ParseRetryAfter(message string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(message)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	if value <= 0 {
		return 0
	}
	unit := unitFor(m[2])
	if value >= float64(MaxRetryAfter/unit) {
		return MaxRetryAfter
	}
	return time.Duration(value * float64(unit))
}

func unitFor(suffix string) time.Duration {
	switch strings.ToLower(suffix) {
	case "ms":
		return time.Millisecond
	case "m", "min", "mins", "minute", "minutes":
		return time.Minute
	case "h":
		return time.Hour
	default:
		return time.Second
	}
}
