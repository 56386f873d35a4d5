package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		expected string
	}{
		{CategoryUnknown, "unknown"},
		{CategoryTransient, "transient"},
		{CategoryRateLimited, "rate_limited"},
		{CategoryResourceExhaustion, "resource_exhaustion"},
		{CategoryConfigurationDefect, "configuration_defect"},
		{CategoryPermanent, "permanent"},
		{CategoryCancelled, "cancelled"},
		{Category(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.category.String(); got != tt.expected {
				t.Errorf("Category.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input   string
		want    Category
		wantErr bool
	}{
		{"transient", CategoryTransient, false},
		{"Rate-Limited", CategoryRateLimited, false},
		{" resource_exhaustion ", CategoryResourceExhaustion, false},
		{"configuration_defect", CategoryConfigurationDefect, false},
		{"unknown", CategoryUnknown, false},
		{"bogus", CategoryUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCategory(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCategory(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestClassifiedErrorError(t *testing.T) {
	t.Run("with underlying error", func(t *testing.T) {
		err := New(CategoryTransient, "wrapped", errors.New("base error"))
		expected := "[transient] wrapped: base error"
		if err.Error() != expected {
			t.Errorf("Error() = %v, want %v", err.Error(), expected)
		}
	})

	t.Run("without underlying error", func(t *testing.T) {
		err := New(CategoryPermanent, "simple error", nil)
		expected := "[permanent] simple error"
		if err.Error() != expected {
			t.Errorf("Error() = %v, want %v", err.Error(), expected)
		}
	})
}

func TestClassifiedErrorIs(t *testing.T) {
	err1 := New(CategoryTransient, "error 1", nil)
	err2 := New(CategoryTransient, "error 2", nil)
	err3 := New(CategoryPermanent, "error 3", nil)

	if !err1.Is(err2) {
		t.Error("errors with same category should match with Is()")
	}
	if err1.Is(err3) {
		t.Error("errors with different categories should not match with Is()")
	}
	if err1.Is(errors.New("plain error")) {
		t.Error("ClassifiedError.Is should return false for non-ClassifiedError")
	}
	if !errors.Is(fmt.Errorf("outer: %w", err1), ErrTimeout) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestClassifiedErrorBuilders(t *testing.T) {
	err := New(CategoryRateLimited, "slow down", nil).
		WithStatusCode(http.StatusTooManyRequests).
		WithRetryAfter(30 * time.Second).
		WithResourceClass("openai").
		WithContext("region", "us-east-1")

	if err.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", err.StatusCode)
	}
	if err.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", err.RetryAfter)
	}
	if err.ResourceClass != "openai" {
		t.Errorf("ResourceClass = %q, want openai", err.ResourceClass)
	}
	if err.Context["region"] != "us-east-1" {
		t.Errorf("Context[region] = %q, want us-east-1", err.Context["region"])
	}
}

func TestGetCategory(t *testing.T) {
	if got := GetCategory(ErrDiskFull); got != CategoryResourceExhaustion {
		t.Errorf("GetCategory(ErrDiskFull) = %v", got)
	}
	if got := GetCategory(fmt.Errorf("ctx: %w", ErrCancelled)); got != CategoryCancelled {
		t.Errorf("GetCategory(wrapped ErrCancelled) = %v", got)
	}
	if got := GetCategory(errors.New("plain")); got != CategoryUnknown {
		t.Errorf("GetCategory(plain) = %v", got)
	}
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		if Wrap(CategoryTransient, "msg", nil) != nil {
			t.Error("Wrap(nil) should return nil")
		}
	})

	t.Run("plain error gets category", func(t *testing.T) {
		err := Wrap(CategoryTransient, "dial", errors.New("refused"))
		if GetCategory(err) != CategoryTransient {
			t.Errorf("category = %v, want transient", GetCategory(err))
		}
	})

	t.Run("existing classification preserved", func(t *testing.T) {
		inner := New(CategoryRateLimited, "throttled", nil).WithRetryAfter(time.Minute)
		err := Wrap(CategoryTransient, "outer", inner)

		var ce *ClassifiedError
		if !errors.As(err, &ce) {
			t.Fatal("expected ClassifiedError")
		}
		if ce.Category != CategoryRateLimited {
			t.Errorf("category = %v, want rate_limited", ce.Category)
		}
		if ce.RetryAfter != time.Minute {
			t.Errorf("RetryAfter = %v, want 1m", ce.RetryAfter)
		}
	})
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		err      *ClassifiedError
		category Category
	}{
		{ErrTimeout, CategoryTransient},
		{ErrConnectionReset, CategoryTransient},
		{ErrRateLimited, CategoryRateLimited},
		{ErrQuotaExceeded, CategoryRateLimited},
		{ErrOutOfMemory, CategoryResourceExhaustion},
		{ErrDiskFull, CategoryResourceExhaustion},
		{ErrMissingField, CategoryConfigurationDefect},
		{ErrBrokenDependency, CategoryConfigurationDefect},
		{ErrUnauthorized, CategoryPermanent},
		{ErrCancelled, CategoryCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.err.Message, func(t *testing.T) {
			if tt.err.Category != tt.category {
				t.Errorf("category = %v, want %v", tt.err.Category, tt.category)
			}
		})
	}
}

func TestSignalFromError(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("classified error carries hints", func(t *testing.T) {
		err := fmt.Errorf("call upstream: %w",
			New(CategoryRateLimited, "throttled", nil).
				WithStatusCode(http.StatusTooManyRequests).
				WithRetryAfter(45*time.Second).
				WithResourceClass("upstream-api").
				WithContext("endpoint", "/v1/items"))

		sig := SignalFromError(err, "task-1", 2, "", now)

		if sig.KindHint != "rate_limited" {
			t.Errorf("KindHint = %q, want rate_limited", sig.KindHint)
		}
		if sig.StatusCode != http.StatusTooManyRequests {
			t.Errorf("StatusCode = %d, want 429", sig.StatusCode)
		}
		if sig.RetryAfter != 45*time.Second {
			t.Errorf("RetryAfter = %v, want 45s", sig.RetryAfter)
		}
		if sig.ResourceClass != "upstream-api" {
			t.Errorf("ResourceClass = %q, want upstream-api", sig.ResourceClass)
		}
		if sig.Metadata["endpoint"] != "/v1/items" {
			t.Errorf("Metadata[endpoint] = %q", sig.Metadata["endpoint"])
		}
		if sig.TaskID != "task-1" || sig.AttemptCount != 2 || !sig.ObservedAt.Equal(now) {
			t.Errorf("identity fields not copied: %+v", sig)
		}
	})

	t.Run("explicit resource class wins", func(t *testing.T) {
		err := ErrOutOfMemory.WithResourceClass("gpu")
		sig := SignalFromError(New(CategoryResourceExhaustion, "oom", err), "t", 0, "worker-pool", now)
		if sig.ResourceClass != "worker-pool" {
			t.Errorf("ResourceClass = %q, want worker-pool", sig.ResourceClass)
		}
	})

	t.Run("context errors", func(t *testing.T) {
		if got := SignalFromError(context.Canceled, "t", 0, "", now).KindHint; got != "cancelled" {
			t.Errorf("canceled hint = %q", got)
		}
		if got := SignalFromError(context.DeadlineExceeded, "t", 0, "", now).KindHint; got != "transient" {
			t.Errorf("deadline hint = %q", got)
		}
	})

	t.Run("plain error has no hint", func(t *testing.T) {
		sig := SignalFromError(errors.New("something odd"), "t", 1, "", now)
		if sig.KindHint != "" {
			t.Errorf("KindHint = %q, want empty", sig.KindHint)
		}
		if sig.RawMessage != "something odd" {
			t.Errorf("RawMessage = %q", sig.RawMessage)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		sig := SignalFromError(nil, "t", 0, "", now)
		if sig.RawMessage != "" {
			t.Errorf("RawMessage = %q, want empty", sig.RawMessage)
		}
	})
}
