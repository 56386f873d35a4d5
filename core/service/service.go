// Package service assembles a ready-to-use decision engine from a Config:
// pattern source, circuit tracker, advisory adapter, metrics and the
// attempt-history store.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/adalundhe/rebound/core/advisory"
	"github.com/adalundhe/rebound/core/circuit"
	"github.com/adalundhe/rebound/core/config"
	"github.com/adalundhe/rebound/core/engine"
	"github.com/adalundhe/rebound/core/history"
	"github.com/adalundhe/rebound/core/metrics"
	"github.com/adalundhe/rebound/core/pattern"
)

type Service struct {
	Config   *config.Config
	Engine   *engine.Engine
	Tracker  *circuit.Tracker
	Metrics  *metrics.Collector
	Registry *prometheus.Registry

	// History is nil when the store is disabled.
	History *history.Store

	// Watcher is nil unless a pattern file is watched.
	Watcher *pattern.Watcher

	advisor *advisory.Adapter
	logger  *slog.Logger
}

type options struct {
	logger     *slog.Logger
	classifier advisory.Classifier
	noHistory  bool
	runtime    bool
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClassifier uses c instead of the backend named in the config.
func WithClassifier(c advisory.Classifier) Option {
	return func(o *options) {
		o.classifier = c
	}
}

// WithoutHistory skips opening the attempt-history store.
func WithoutHistory() Option {
	return func(o *options) {
		o.noHistory = true
	}
}

// WithRuntimeMetrics adds Go runtime and process collectors to the registry.
func WithRuntimeMetrics() Option {
	return func(o *options) {
		o.runtime = true
	}
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	if o.runtime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := metrics.New(reg)

	s := &Service{
		Config:   cfg,
		Metrics:  m,
		Registry: reg,
		logger:   o.logger,
	}

	source, err := s.patternSource(cfg.Patterns)
	if err != nil {
		return nil, err
	}
	m.SetPatterns(source.Current().Len())

	s.Tracker = circuit.NewTracker(cfg.Circuit, circuit.WithTripListener(func(st circuit.State) {
		m.ObserveTrip(st)
		o.logger.Warn("circuit tripped",
			"resource_class", st.ResourceClass,
			"failures", st.ConsecutiveFailures,
			"expires_at", st.TripExpiresAt)
	}))
	m.WatchCircuits(s.Tracker)

	backend := o.classifier
	if backend == nil {
		backend, err = advisory.NewClassifier(ctx, cfg.Advisory.Backend)
		if err != nil {
			return nil, fmt.Errorf("advisory backend: %w", err)
		}
	}
	if backend != nil {
		name := string(cfg.Advisory.Backend.Provider)
		if o.classifier != nil || name == "" {
			name = "custom"
		}
		s.advisor, err = advisory.NewAdapter(backend, cfg.Advisory.Adapter,
			advisory.WithLogger(o.logger),
			advisory.WithObserver(m.ObserveAdvisory),
			advisory.WithName(name),
		)
		if err != nil {
			return nil, fmt.Errorf("advisory adapter: %w", err)
		}
	}

	engineOpts := []engine.Option{
		engine.WithConfig(cfg.Engine),
		engine.WithLogger(o.logger),
		engine.WithMetrics(m),
	}
	if s.advisor != nil {
		engineOpts = append(engineOpts, engine.WithAdvisor(s.advisor))
	}
	s.Engine = engine.New(source, s.Tracker, engineOpts...)

	if !o.noHistory {
		s.History, err = history.Open(cfg.History)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("history store: %w", err)
		}
	}
	return s, nil
}

func (s *Service) patternSource(cfg config.PatternsConfig) (pattern.Source, error) {
	if cfg.File == "" {
		return pattern.DefaultLibrary(), nil
	}
	if !cfg.Watch {
		lib, err := pattern.LoadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("pattern file: %w", err)
		}
		return lib, nil
	}

	w, err := pattern.NewWatcher(cfg.File,
		pattern.WithWatcherLogger(s.logger),
		pattern.WithDebounce(cfg.Debounce),
		pattern.WithReloadHook(func(lib *pattern.Library) {
			s.Metrics.ObserveReload(lib.Len())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("pattern file: %w", err)
	}
	s.Watcher = w
	return w, nil
}

// Advising reports whether an advisory backend is configured.
func (s *Service) Advising() bool {
	return s.advisor != nil
}

// Run watches the pattern file until ctx is done. It returns immediately
// when nothing is watched.
func (s *Service) Run(ctx context.Context) error {
	if s.Watcher == nil {
		return nil
	}
	return s.Watcher.Run(ctx)
}

func (s *Service) Close() error {
	if s.advisor != nil {
		s.advisor.Close()
	}
	if s.History != nil {
		return s.History.Close()
	}
	return nil
}
