package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adalundhe/rebound/core/advisory"
	"github.com/adalundhe/rebound/core/failure"
	"github.com/adalundhe/rebound/core/storage"
)

func testManager(t *testing.T, opts ...ManagerOption) (*Manager, *storage.Dirs, *storage.ProjectDirs) {
	t.Helper()
	dirs := &storage.Dirs{
		Config: t.TempDir(),
		Data:   t.TempDir(),
	}
	root := t.TempDir()
	opts = append([]ManagerOption{WithProjectRoot(root)}, opts...)
	return NewManager(dirs, opts...), dirs, storage.ResolveProjectDirs(root)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.HighConfidence != 0.9 {
		t.Errorf("Engine.HighConfidence: got %v, want 0.9", cfg.Engine.HighConfidence)
	}
	if cfg.Circuit.Threshold != 5 {
		t.Errorf("Circuit.Threshold: got %d, want 5", cfg.Circuit.Threshold)
	}
	if cfg.Advisory.Adapter.Timeout != 2*time.Second {
		t.Errorf("Advisory timeout: got %v, want 2s", cfg.Advisory.Adapter.Timeout)
	}
	if cfg.Advisory.Backend.Provider != advisory.ProviderNone {
		t.Errorf("Advisory provider: got %s, want none", cfg.Advisory.Backend.Provider)
	}
	if !cfg.Engine.EscalationAvailable {
		t.Error("Engine.EscalationAvailable should be true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestManagerGet(t *testing.T) {
	m, _, _ := testManager(t)

	cfg := m.Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr: got %s, want :8080", cfg.Server.Addr)
	}
}

func TestManagerLayers(t *testing.T) {
	m, dirs, project := testManager(t)

	writeFile(t, dirs.ConfigDir("config.yaml"), `
engine:
  top_k: 5
circuit:
  threshold: 7
  trip_duration: 10m
log:
  level: debug
`)
	writeFile(t, project.Config, `
circuit:
  threshold: 3
advisory:
  provider: anthropic
  model: claude-haiku-4-5
  timeout: 1500ms
  cache_ttl: 1m
`)
	writeFile(t, project.Local, `
engine:
  strategy_defaults:
    fixed_backoff:
      base: 20s
`)

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()

	if cfg.Engine.TopK != 5 {
		t.Errorf("TopK from user config: got %d, want 5", cfg.Engine.TopK)
	}
	if cfg.Circuit.Threshold != 3 {
		t.Errorf("project config should override user config: got %d, want 3", cfg.Circuit.Threshold)
	}
	if cfg.Circuit.TripDuration != 10*time.Minute {
		t.Errorf("TripDuration: got %v, want 10m", cfg.Circuit.TripDuration)
	}
	if cfg.Advisory.Backend.Provider != advisory.ProviderAnthropic {
		t.Errorf("Provider: got %s, want anthropic", cfg.Advisory.Backend.Provider)
	}
	if cfg.Advisory.Adapter.Timeout != 1500*time.Millisecond {
		t.Errorf("Advisory timeout: got %v, want 1.5s", cfg.Advisory.Adapter.Timeout)
	}
	if got := cfg.Engine.StrategyDefaults[failure.StrategyFixedBackoff].Base; got != 20*time.Second {
		t.Errorf("fixed_backoff base: got %v, want 20s", got)
	}
	if _, ok := cfg.Engine.StrategyDefaults[failure.StrategyExponentialBackoff]; !ok {
		t.Error("local config should merge into strategy defaults, not replace them")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %s, want debug", cfg.Log.Level)
	}
	if got := len(m.Sources()); got != 3 {
		t.Errorf("Sources: got %d, want 3", got)
	}
}

func TestManagerExplicitFileRequired(t *testing.T) {
	m, _, _ := testManager(t, WithFile(filepath.Join(t.TempDir(), "missing.yaml")))

	if err := m.Load(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestManagerHistoryPath(t *testing.T) {
	t.Setenv("REBOUND_HISTORY_PATH", "")

	t.Run("user data dir without project", func(t *testing.T) {
		m, dirs, _ := testManager(t)
		if err := m.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got, want := m.Get().History.Path, dirs.DataDir("history.db"); got != want {
			t.Errorf("History.Path: got %s, want %s", got, want)
		}
	})

	t.Run("project dir when present", func(t *testing.T) {
		m, _, project := testManager(t)
		if err := os.MkdirAll(project.Root, 0755); err != nil {
			t.Fatal(err)
		}
		if err := m.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got := m.Get().History.Path; got != project.History {
			t.Errorf("History.Path: got %s, want %s", got, project.History)
		}
	})

	t.Run("configured path kept", func(t *testing.T) {
		m, dirs, _ := testManager(t)
		path := filepath.Join(t.TempDir(), "custom.db")
		writeFile(t, dirs.ConfigDir("config.yaml"), "history:\n  path: "+path+"\n")
		if err := m.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got := m.Get().History.Path; got != path {
			t.Errorf("History.Path: got %s, want %s", got, path)
		}
	})
}

func TestManagerInvalidConfigKeepsPrevious(t *testing.T) {
	m, dirs, _ := testManager(t)

	writeFile(t, dirs.ConfigDir("config.yaml"), "engine:\n  high_confidence_threshold: 1.5\n")

	if err := m.Load(); err == nil {
		t.Fatal("expected validation error")
	}
	if m.Get().Engine.HighConfidence != 0.9 {
		t.Error("failed load should keep previous config")
	}
}

func TestManagerEnvironmentOverride(t *testing.T) {
	m, dirs, _ := testManager(t)
	writeFile(t, dirs.ConfigDir("config.yaml"), "circuit:\n  threshold: 7\n")

	t.Setenv("REBOUND_CIRCUIT_THRESHOLD", "2")
	t.Setenv("REBOUND_HIGH_CONFIDENCE_THRESHOLD", "0.8")
	t.Setenv("REBOUND_ESCALATION_AVAILABLE", "false")
	t.Setenv("REBOUND_ADVISORY_PROVIDER", "google")
	t.Setenv("REBOUND_CIRCUIT_TRIP_DURATION", "90s")

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()

	if cfg.Circuit.Threshold != 2 {
		t.Errorf("env should override file: got %d, want 2", cfg.Circuit.Threshold)
	}
	if cfg.Engine.HighConfidence != 0.8 {
		t.Errorf("HighConfidence: got %v, want 0.8", cfg.Engine.HighConfidence)
	}
	if cfg.Engine.EscalationAvailable {
		t.Error("EscalationAvailable should be false")
	}
	if cfg.Advisory.Backend.Provider != advisory.ProviderGemini {
		t.Errorf("Provider: got %s, want gemini", cfg.Advisory.Backend.Provider)
	}
	if cfg.Circuit.TripDuration != 90*time.Second {
		t.Errorf("TripDuration: got %v, want 90s", cfg.Circuit.TripDuration)
	}
}

func TestManagerEnvironmentMalformed(t *testing.T) {
	m, _, _ := testManager(t)
	t.Setenv("REBOUND_TOP_K", "three")

	err := m.Load()
	if err == nil {
		t.Fatal("expected error for malformed env value")
	}
	if !strings.Contains(err.Error(), "REBOUND_TOP_K") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestManagerOverride(t *testing.T) {
	m, dirs, _ := testManager(t)
	writeFile(t, dirs.ConfigDir("config.yaml"), "server:\n  addr: \":9000\"\n")
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := m.Override(&Config{Patterns: PatternsConfig{File: "patterns.yaml"}}); err != nil {
		t.Fatalf("Override failed: %v", err)
	}
	if err := m.Override(&Config{Log: LogConfig{Level: "debug"}}); err != nil {
		t.Fatalf("Override failed: %v", err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Patterns.File != "patterns.yaml" || cfg.Log.Level != "debug" {
		t.Errorf("overrides should survive reload: file=%q level=%q", cfg.Patterns.File, cfg.Log.Level)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr: got %s, want :9000", cfg.Server.Addr)
	}

	if err := m.Override(&Config{Log: LogConfig{Format: "xml"}}); err == nil {
		t.Error("expected invalid override to be rejected")
	}
}

func TestManagerOnChange(t *testing.T) {
	m, _, _ := testManager(t)

	var calls atomic.Int32
	m.OnChange(func(cfg *Config) {
		calls.Add(1)
	})

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("OnChange calls: got %d, want 2", calls.Load())
	}
}

func TestManagerReload(t *testing.T) {
	m, dirs, _ := testManager(t)
	path := dirs.ConfigDir("config.yaml")

	writeFile(t, path, "engine:\n  top_k: 2\n")
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	before := m.Get()

	writeFile(t, path, "engine:\n  top_k: 4\n")
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if m.Get().Engine.TopK != 4 {
		t.Errorf("TopK after reload: got %d, want 4", m.Get().Engine.TopK)
	}
	if before.Engine.TopK != 2 {
		t.Error("reload must not mutate a previously published config")
	}
}

func TestConfigStringRedactsKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Advisory.Backend.APIKey = "sk-secret"

	out := cfg.String()
	if strings.Contains(out, "sk-secret") {
		t.Error("String() leaked the API key")
	}
	if !strings.Contains(out, "high_confidence_threshold: 0.9") {
		t.Errorf("String() missing engine section:\n%s", out)
	}
	if cfg.Advisory.Backend.APIKey != "sk-secret" {
		t.Error("String() must not modify the config")
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"INFO", false},
		{"warn", false},
		{"error", false},
		{"loud", true},
	}
	for _, tt := range tests {
		_, err := LogConfig{Level: tt.level}.SlogLevel()
		if (err != nil) != tt.wantErr {
			t.Errorf("SlogLevel(%q): err=%v, wantErr=%v", tt.level, err, tt.wantErr)
		}
	}
}
