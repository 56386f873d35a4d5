package pattern

import (
	"time"

	"github.com/adalundhe/rebound/core/backoff"
	rerrors "github.com/adalundhe/rebound/core/errors"
	"github.com/adalundhe/rebound/core/failure"
)

// UnknownPattern is the synthetic fallback used when no pattern matches.
// It backs off briefly and gives up quickly so unknown failures end in
// escalation rather than endless retries.
func UnknownPattern() Pattern {
	return Pattern{
		ID:             UnknownID,
		Category:       rerrors.CategoryUnknown,
		Description:    "No known pattern matched",
		Strategy:       failure.StrategyFixedBackoff,
		BaseConfidence: 0.3,
		MaxAttempts:    3,
		Params:         backoff.Params{Base: 10 * time.Second},
	}
}

// DefaultPatterns returns the built-in taxonomy, most specific first.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			ID:          "rate_limited.http_429",
			Category:    rerrors.CategoryRateLimited,
			Description: "Explicit throttling by an upstream service",
			Hints:       []string{"throttled", "too_many_requests"},
			Signature: Any(
				Status(429),
				Substring("too many requests", "rate limit", "ratelimit", "throttl", "slow down"),
			),
			Strategy:       failure.StrategyLinearBackoff,
			BaseConfidence: 0.95,
			MaxAttempts:    10,
			Params: backoff.Params{
				Base:      5 * time.Second,
				Increment: 5 * time.Second,
				Cap:       5 * time.Minute,
			},
		},
		{
			ID:          "rate_limited.quota",
			Category:    rerrors.CategoryRateLimited,
			Description: "Usage quota exhausted for the current period",
			Hints:       []string{"quota"},
			Signature: Substring(
				"quota exceeded", "quota exhausted", "exceeded your current quota",
				"resource_exhausted", "usage limit",
			),
			Strategy:       failure.StrategyLinearBackoff,
			BaseConfidence: 0.85,
			MaxAttempts:    6,
			Params: backoff.Params{
				Base:      30 * time.Second,
				Increment: 30 * time.Second,
				Cap:       10 * time.Minute,
			},
		},
		{
			ID:          "resource_exhaustion.oom",
			Category:    rerrors.CategoryResourceExhaustion,
			Description: "Worker ran out of memory",
			Hints:       []string{"oom", "out_of_memory"},
			Signature: Any(
				Substring("out of memory", "outofmemory", "cannot allocate memory", "memory limit exceeded"),
				Regex(`(?i)\boom(?:[- ]?kill(?:ed|er)?)?\b`),
			),
			Strategy:       failure.StrategyCircuitBreaker,
			BaseConfidence: 0.9,
			MaxAttempts:    8,
			Params:         backoff.Params{Base: 30 * time.Second},
		},
		{
			ID:          "resource_exhaustion.disk",
			Category:    rerrors.CategoryResourceExhaustion,
			Description: "Storage exhausted",
			Hints:       []string{"disk_full"},
			Signature: Any(
				Substring("no space left on device", "disk full", "enospc"),
				Glob("*disk quota*exceeded*"),
			),
			Strategy:       failure.StrategyCircuitBreaker,
			BaseConfidence: 0.9,
			MaxAttempts:    5,
			Params:         backoff.Params{Base: time.Minute},
		},
		{
			ID:          "transient.timeout",
			Category:    rerrors.CategoryTransient,
			Description: "Operation timed out",
			Hints:       []string{"timeout", "deadline_exceeded"},
			Signature: Any(
				Substring("timeout", "timed out", "deadline exceeded"),
				Status(408),
			),
			Strategy:       failure.StrategyExponentialBackoff,
			BaseConfidence: 0.9,
			MaxAttempts:    5,
			Params: backoff.Params{
				Base:       5 * time.Second,
				Multiplier: 2,
				Cap:        5 * time.Minute,
				Jitter:     0.2,
			},
		},
		{
			ID:          "transient.connection",
			Category:    rerrors.CategoryTransient,
			Description: "Connection dropped or refused, or a gateway failed",
			Hints:       []string{"connection", "network"},
			Signature: Any(
				Substring(
					"connection reset", "connection refused", "connection closed",
					"broken pipe", "network is unreachable", "no such host",
					"temporary failure", "bad gateway", "service unavailable",
				),
				Regex(`(?i)\bEOF\b`),
				Status(502, 503, 504),
			),
			Strategy:       failure.StrategyExponentialBackoff,
			BaseConfidence: 0.85,
			MaxAttempts:    6,
			Params: backoff.Params{
				Base:       2 * time.Second,
				Multiplier: 2,
				Cap:        2 * time.Minute,
				Jitter:     0.2,
			},
		},
		{
			ID:          "configuration_defect.missing_field",
			Category:    rerrors.CategoryConfigurationDefect,
			Description: "A required field or parameter was not supplied",
			Hints:       []string{"missing_field", "validation"},
			Signature: Regex(
				`(?i)missing\s+(?:required\s+)?(?:field|parameter|argument|key|property)`,
				`(?i)required\s+(?:field|parameter|property)\b.*\b(?:missing|not set|empty)`,
				`(?i)\bfield\b.*\bis required\b`,
			),
			Strategy:       failure.StrategyImmediateRetry,
			BaseConfidence: 0.95,
			MaxAttempts:    2,
			Params:         backoff.Params{Base: time.Second},
		},
		{
			ID:          "configuration_defect.dependency",
			Category:    rerrors.CategoryConfigurationDefect,
			Description: "A dependency was not wired or could not be resolved",
			Hints:       []string{"dependency"},
			Signature: Regex(
				`(?i)(?:dependency|module|plugin|provider|service)\s+\S+\s+(?:is\s+)?not\s+(?:found|wired|registered|available|configured)`,
				`(?i)(?:unresolved|missing|nil)\s+dependency`,
				`(?i)no\s+provider\s+registered`,
			),
			Strategy:       failure.StrategyImmediateRetry,
			BaseConfidence: 0.95,
			MaxAttempts:    2,
			Params:         backoff.Params{Base: time.Second},
		},
		{
			ID:             "cancelled",
			Category:       rerrors.CategoryCancelled,
			Description:    "Task was cancelled upstream",
			Hints:          []string{"canceled", "aborted"},
			Signature:      Substring("context canceled", "cancelled", "canceled", "aborted by user"),
			Strategy:       failure.StrategySkip,
			BaseConfidence: 0.95,
			MaxAttempts:    1,
		},
		{
			ID:          "permanent.auth",
			Category:    rerrors.CategoryPermanent,
			Description: "Credentials rejected",
			Hints:       []string{"auth", "unauthorized", "forbidden"},
			Signature: Any(
				Status(401, 403),
				Substring(
					"invalid credentials", "invalid api key", "unauthorized",
					"forbidden", "authentication failed", "permission denied",
				),
			),
			Strategy:       failure.StrategyPermanentlyFailed,
			BaseConfidence: 0.9,
			MaxAttempts:    1,
		},
	}
}

// DefaultLibrary returns a library holding DefaultPatterns.
func DefaultLibrary() *Library {
	return MustLibrary(DefaultPatterns()...)
}
