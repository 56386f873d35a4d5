package storage

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveDirs(t *testing.T) {
	dirs := ResolveDirs()

	for name, dir := range map[string]string{
		"config": dirs.Config,
		"data":   dirs.Data,
	} {
		if dir == "" {
			t.Errorf("%s dir should not be empty", name)
		}
		if !strings.Contains(dir, "rebound") {
			t.Errorf("%s dir should contain 'rebound': %s", name, dir)
		}
	}
}

func TestResolveDirsXDGOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))

	dirs := ResolveDirs()

	if want := filepath.Join(tmpDir, "rebound"); dirs.Config != want {
		t.Errorf("XDG config override: got %s, want %s", dirs.Config, want)
	}
	if want := filepath.Join(tmpDir, "data", "rebound", "history.db"); dirs.DataDir("history.db") != want {
		t.Errorf("DataDir: got %s, want %s", dirs.DataDir("history.db"), want)
	}
}

func TestResolveProjectDirs(t *testing.T) {
	root := filepath.Join("test", "project")
	dirs := ResolveProjectDirs(root)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"root", dirs.Root, filepath.Join(root, ".rebound")},
		{"config", dirs.Config, filepath.Join(root, ".rebound", "config.yaml")},
		{"local", dirs.Local, filepath.Join(root, ".rebound", "config.local.yaml")},
		{"history", dirs.History, filepath.Join(root, ".rebound", "history.db")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, tt.got, tt.want)
		}
	}
}
