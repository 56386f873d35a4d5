// Package errors implements the failure category taxonomy and a typed error
// that lets callers attach recovery hints to ordinary Go errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Category is the failure category a recovery pattern belongs to.
type Category int

const (
	// CategoryUnknown is used when nothing better is known.
	CategoryUnknown Category = iota

	// CategoryTransient covers timeouts, connection resets and similar
	// failures that usually clear on their own.
	CategoryTransient

	// CategoryRateLimited covers explicit throttling signals.
	CategoryRateLimited

	// CategoryResourceExhaustion covers memory, disk and quota class errors.
	CategoryResourceExhaustion

	// CategoryConfigurationDefect covers missing required fields and broken
	// dependency wiring.
	CategoryConfigurationDefect

	// CategoryPermanent covers failures a retry will not fix.
	CategoryPermanent

	// CategoryCancelled covers tasks that were cancelled upstream.
	CategoryCancelled
)

var categoryNames = map[Category]string{
	CategoryUnknown:             "unknown",
	CategoryTransient:           "transient",
	CategoryRateLimited:         "rate_limited",
	CategoryResourceExhaustion:  "resource_exhaustion",
	CategoryConfigurationDefect: "configuration_defect",
	CategoryPermanent:           "permanent",
	CategoryCancelled:           "cancelled",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCategory parses a category name. Unrecognized names are an error.
func ParseCategory(name string) (Category, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for c, n := range categoryNames {
		if n == normalized {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("unknown failure category %q", name)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ClassifiedError wraps an error with a failure category and recovery hints.
type ClassifiedError struct {
	Category      Category
	Message       string
	Underlying    error
	StatusCode    int
	RetryAfter    time.Duration
	ResourceClass string
	Context       map[string]string
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ClassifiedError) Unwrap() error {
	return e.Underlying
}

// Is matches any ClassifiedError of the same category.
func (e *ClassifiedError) Is(target error) bool {
	var ce *ClassifiedError
	if errors.As(target, &ce) {
		return e.Category == ce.Category
	}
	return false
}

// New creates a ClassifiedError.
func New(category Category, message string, underlying error) *ClassifiedError {
	return &ClassifiedError{
		Category:   category,
		Message:    message,
		Underlying: underlying,
		Context:    make(map[string]string),
	}
}

// WithStatusCode adds an HTTP status code to the error.
func (e *ClassifiedError) WithStatusCode(code int) *ClassifiedError {
	e.StatusCode = code
	return e
}

// WithRetryAfter adds a server-suggested wait to the error.
func (e *ClassifiedError) WithRetryAfter(d time.Duration) *ClassifiedError {
	e.RetryAfter = d
	return e
}

// WithResourceClass records which resource class produced the error.
func (e *ClassifiedError) WithResourceClass(class string) *ClassifiedError {
	e.ResourceClass = class
	return e
}

// WithContext adds context key-value pairs to the error.
func (e *ClassifiedError) WithContext(key, value string) *ClassifiedError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// GetCategory extracts the Category from an error, defaulting to unknown.
func GetCategory(err error) Category {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUnknown
}

// Wrap wraps an error with a category. An existing classification deeper in
// the chain is preserved.
func Wrap(category Category, message string, err error) error {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return &ClassifiedError{
			Category:      ce.Category,
			Message:       message,
			Underlying:    err,
			StatusCode:    ce.StatusCode,
			RetryAfter:    ce.RetryAfter,
			ResourceClass: ce.ResourceClass,
			Context:       ce.Context,
		}
	}

	return New(category, message, err)
}

// Common sentinel errors, one or more per category.
var (
	ErrTimeout         = New(CategoryTransient, "operation timed out", nil)
	ErrConnectionReset = New(CategoryTransient, "connection reset", nil)

	ErrRateLimited   = New(CategoryRateLimited, "rate limited", nil).WithStatusCode(http.StatusTooManyRequests)
	ErrQuotaExceeded = New(CategoryRateLimited, "quota exceeded", nil)

	ErrOutOfMemory = New(CategoryResourceExhaustion, "out of memory", nil)
	ErrDiskFull    = New(CategoryResourceExhaustion, "no space left on device", nil)

	ErrMissingField     = New(CategoryConfigurationDefect, "missing required field", nil)
	ErrBrokenDependency = New(CategoryConfigurationDefect, "dependency not wired", nil)

	ErrUnauthorized = New(CategoryPermanent, "unauthorized", nil).WithStatusCode(http.StatusUnauthorized)

	ErrCancelled = New(CategoryCancelled, "task cancelled", nil)
)
