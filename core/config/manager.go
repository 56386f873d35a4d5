// Package config loads rebound's layered YAML configuration and environment
// overrides.
//
// Layers are applied in order, each overriding the fields it sets:
//
//	defaults
//	user config      ($XDG_CONFIG_HOME/rebound/config.yaml)
//	project config   (.rebound/config.yaml)
//	local config     (.rebound/config.local.yaml)
//	explicit file    (--config)
//	REBOUND_* environment variables
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/rebound/core/advisory"
	"github.com/adalundhe/rebound/core/backoff"
	"github.com/adalundhe/rebound/core/circuit"
	"github.com/adalundhe/rebound/core/engine"
	"github.com/adalundhe/rebound/core/failure"
	"github.com/adalundhe/rebound/core/history"
	"github.com/adalundhe/rebound/core/pattern"
	"github.com/adalundhe/rebound/core/storage"
)

type Manager struct {
	config    atomic.Pointer[Config]
	dirs      *storage.Dirs
	project   *storage.ProjectDirs
	file      string
	override  *Config
	sources   atomic.Pointer[[]string]
	watchers  []func(*Config)
	watcherMu sync.RWMutex
	loadMu    sync.Mutex
}

type Config struct {
	Engine   engine.Config  `yaml:"engine"`
	Circuit  circuit.Config `yaml:"circuit"`
	Advisory AdvisoryConfig `yaml:"advisory"`
	Patterns PatternsConfig `yaml:"patterns"`
	History  history.Config `yaml:"history"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// AdvisoryConfig flattens the backend and adapter settings into one section.
type AdvisoryConfig struct {
	Backend advisory.BackendConfig `yaml:",inline"`
	Adapter advisory.Config        `yaml:",inline"`
}

type PatternsConfig struct {
	// File replaces the built-in library when set.
	File     string        `yaml:"file"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsPath     string        `yaml:"metrics_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return level, nil
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFile adds an explicit config file on top of the discovered layers.
// Unlike the discovered layers it must exist.
func WithFile(path string) ManagerOption {
	return func(m *Manager) {
		m.file = path
	}
}

// WithProjectRoot sets the directory searched for .rebound/. Defaults to the
// working directory.
func WithProjectRoot(root string) ManagerOption {
	return func(m *Manager) {
		m.project = storage.ResolveProjectDirs(root)
	}
}

func NewManager(dirs *storage.Dirs, opts ...ManagerOption) *Manager {
	if dirs == nil {
		dirs = storage.ResolveDirs()
	}
	m := &Manager{
		dirs:    dirs,
		project: storage.ResolveProjectDirs("."),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.config.Store(DefaultConfig())
	m.sources.Store(&[]string{})
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Engine:  engine.DefaultConfig(),
		Circuit: circuit.DefaultConfig(),
		Advisory: AdvisoryConfig{
			Backend: advisory.BackendConfig{Provider: advisory.ProviderNone},
			Adapter: advisory.DefaultConfig(),
		},
		Patterns: PatternsConfig{
			Debounce: pattern.DefaultDebounce,
		},
		History: history.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MetricsPath:     "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports the first invalid section.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Circuit.Validate(); err != nil {
		return err
	}
	if _, err := advisory.ParseProvider(string(c.Advisory.Backend.Provider)); err != nil {
		return err
	}
	if c.Advisory.Adapter.Timeout < 0 {
		return fmt.Errorf("advisory timeout must not be negative, got %s", c.Advisory.Adapter.Timeout)
	}
	if c.History.InflectionRate < 0 || c.History.InflectionRate > 1 {
		return fmt.Errorf("history inflection rate %v outside [0,1]", c.History.InflectionRate)
	}
	if c.Server.Addr == "" {
		return errors.New("server addr is required")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func (m *Manager) Get() *Config {
	return m.config.Load()
}

// Sources lists the files that contributed to the current config.
func (m *Manager) Sources() []string {
	return append([]string(nil), *m.sources.Load()...)
}

// Load rebuilds the config from every layer, validates it and publishes it.
// The previous config stays in place when any layer fails.
func (m *Manager) Load() error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	cfg := DefaultConfig()
	var sources []string

	layers := []struct {
		name     string
		path     string
		required bool
	}{
		{"user config", m.dirs.ConfigDir("config.yaml"), false},
		{"project config", m.project.Config, false},
		{"local config", m.project.Local, false},
		{"config file", m.file, true},
	}
	for _, l := range layers {
		if l.path == "" {
			continue
		}
		found, err := loadYAMLFile(l.path, cfg, l.required)
		if err != nil {
			return fmt.Errorf("%s: %w", l.name, err)
		}
		if found {
			sources = append(sources, l.path)
		}
	}

	if cfg.History.Path == history.DefaultPath {
		cfg.History.Path = m.defaultHistoryPath()
	}

	if err := applyEnvironment(cfg, os.LookupEnv); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if m.override != nil {
		Overlay(cfg, m.override)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config.Store(cfg)
	m.sources.Store(&sources)
	m.notifyWatchers(cfg)
	return nil
}

// defaultHistoryPath keeps history inside the project when it has a .rebound
// directory and in the user data directory otherwise.
func (m *Manager) defaultHistoryPath() string {
	if info, err := os.Stat(m.project.Root); err == nil && info.IsDir() {
		return m.project.History
	}
	return m.dirs.DataDir("history.db")
}

func loadYAMLFile(path string, cfg *Config, required bool) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !required {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	return true, nil
}

// Override applies the non-zero fields of partial on top of the current
// config and publishes the result. The overrides are kept and reapplied by
// later loads, so command-line flags win over every file and environment
// layer.
func (m *Manager) Override(partial *Config) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	cfg := m.config.Load().Clone()
	Overlay(cfg, partial)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if m.override == nil {
		m.override = &Config{}
	}
	Overlay(m.override, partial)
	m.config.Store(cfg)
	m.notifyWatchers(cfg)
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.Engine.StrategyDefaults != nil {
		out.Engine.StrategyDefaults = make(map[failure.Strategy]backoff.Params, len(c.Engine.StrategyDefaults))
		for k, v := range c.Engine.StrategyDefaults {
			out.Engine.StrategyDefaults[k] = v
		}
	}
	return &out
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}

// String renders the config as YAML with the API key redacted.
func (c *Config) String() string {
	redacted := c.Clone()
	if redacted.Advisory.Backend.APIKey != "" {
		redacted.Advisory.Backend.APIKey = "<redacted>"
	}
	data, err := yaml.Marshal(redacted)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return strings.TrimRight(string(data), "\n")
}
