package advisory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout         = 2 * time.Second
	defaultCacheTTL        = 10 * time.Minute
	defaultCacheSize       = 10_000
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// Config configures an Adapter.
type Config struct {
	// Timeout bounds a single advisory call.
	Timeout time.Duration `yaml:"timeout"`

	// CacheTTL is how long a recommendation is reused for the same failure
	// fingerprint. Zero disables caching.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheSize is the maximum number of cached recommendations.
	CacheSize int64 `yaml:"cache_size"`

	// BreakerFailures is the consecutive failure count that opens the
	// breaker around the backend.
	BreakerFailures uint32 `yaml:"breaker_failures"`

	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:         defaultTimeout,
		CacheTTL:        defaultCacheTTL,
		CacheSize:       defaultCacheSize,
		BreakerFailures: defaultBreakerFailures,
		BreakerCooldown: defaultBreakerCooldown,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}
	if c.CacheSize <= 0 {
		c.CacheSize = def.CacheSize
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = def.BreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = def.BreakerCooldown
	}
	return c
}

// Observer receives one call per Advise.
type Observer func(backend string, outcome Outcome, cached bool, elapsed time.Duration)

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithObserver registers a metrics observer.
func WithObserver(fn Observer) AdapterOption {
	return func(a *Adapter) {
		a.observer = fn
	}
}

// WithName labels the backend in logs and metrics.
func WithName(name string) AdapterOption {
	return func(a *Adapter) {
		if name != "" {
			a.name = name
		}
	}
}

// Adapter guards a Classifier. It is safe for concurrent use. A nil
// *Adapter reports OutcomeUnavailable.
type Adapter struct {
	backend  Classifier
	config   Config
	name     string
	logger   *slog.Logger
	observer Observer

	cache   *ristretto.Cache
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
}

// NewAdapter wraps backend.
func NewAdapter(backend Classifier, config Config, opts ...AdapterOption) (*Adapter, error) {
	if backend == nil {
		return nil, fmt.Errorf("advisory: backend is required")
	}

	a := &Adapter{
		backend: backend,
		config:  config.withDefaults(),
		name:    "advisory",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.config.CacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters:        a.config.CacheSize * 10,
			MaxCost:            a.config.CacheSize,
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("advisory: create cache: %w", err)
		}
		a.cache = cache
	}

	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "advisory-" + a.name,
		MaxRequests: 1,
		Timeout:     a.config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= a.config.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warn("advisory breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return a, nil
}

// Name returns the backend label.
func (a *Adapter) Name() string {
	if a == nil {
		return ""
	}
	return a.name
}

// Timeout returns the per-call deadline.
func (a *Adapter) Timeout() time.Duration {
	if a == nil {
		return 0
	}
	return a.config.Timeout
}

// Close releases the cache.
func (a *Adapter) Close() {
	if a != nil && a.cache != nil {
		a.cache.Close()
	}
}

// Advise asks the backend for a recommendation. It never blocks longer than
// the configured timeout or the context deadline, whichever comes first.
func (a *Adapter) Advise(ctx context.Context, req Request) (rec Recommendation, outcome Outcome) {
	if a == nil {
		return Recommendation{}, OutcomeUnavailable
	}

	start := time.Now()
	cached := false
	defer func() {
		if a.observer != nil {
			a.observer(a.name, outcome, cached, time.Since(start))
		}
	}()

	key := Fingerprint(req)
	if r, ok := a.cached(key); ok {
		cached = true
		return r, OutcomeOK
	}

	// The shared call outlives any single caller: it keeps the first
	// caller's values but not its cancellation, and gets its own deadline.
	ch := a.group.DoChan(strconv.FormatUint(key, 16), func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Timeout)
		defer cancel()
		v, err := a.breaker.Execute(func() (any, error) {
			return a.call(callCtx, req)
		})
		if err == nil {
			a.store(key, v.(Recommendation))
		}
		return v, err
	})

	waitCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	select {
	case <-waitCtx.Done():
		return Recommendation{}, a.classify(waitCtx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Recommendation{}, a.classify(res.Err)
		}
		return res.Val.(Recommendation), OutcomeOK
	}
}

type callResult struct {
	rec *Recommendation
	err error
}

// call runs the backend in its own goroutine so a backend that ignores its
// context cannot hold the caller past the deadline.
func (a *Adapter) call(ctx context.Context, req Request) (Recommendation, error) {
	done := make(chan callResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("advisory backend panic: %v", r)}
			}
		}()
		rec, err := a.backend.Advise(ctx, req)
		done <- callResult{rec: rec, err: err}
	}()

	select {
	case <-ctx.Done():
		return Recommendation{}, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return Recommendation{}, res.err
		}
		return sanitize(res.rec)
	}
}

// classify maps an error to an outcome and logs it.
func (a *Adapter) classify(err error) Outcome {
	var outcome Outcome
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = OutcomeUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		outcome = OutcomeTimeout
	default:
		outcome = OutcomeError
	}
	a.logger.Debug("advisory call failed", "backend", a.name, "outcome", outcome, "error", err)
	return outcome
}

func (a *Adapter) cached(key uint64) (Recommendation, bool) {
	if a.cache == nil {
		return Recommendation{}, false
	}
	v, ok := a.cache.Get(key)
	if !ok {
		return Recommendation{}, false
	}
	r, ok := v.(Recommendation)
	return r, ok
}

func (a *Adapter) store(key uint64, r Recommendation) {
	if a.cache == nil {
		return
	}
	a.cache.SetWithTTL(key, r, 1, a.config.CacheTTL)
	a.cache.Wait()
}

// Fingerprint identifies requests that deserve the same answer. Task id
// and attempt count are left out so repeats of one failure share a cache
// entry.
func Fingerprint(req Request) uint64 {
	sig := req.Signal
	ids := make([]string, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		ids = append(ids, c.Pattern.ID)
	}
	sort.Strings(ids)

	d := xxhash.New()
	_, _ = d.WriteString(strings.ToLower(strings.TrimSpace(sig.RawMessage)))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(sig.Hint())
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(sig.StatusCode))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(sig.Class())
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strings.Join(ids, ","))
	return d.Sum64()
}
