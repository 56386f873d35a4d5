// Package storage resolves where rebound keeps configuration and data, with
// XDG support.
package storage

import (
	"os"
	"path/filepath"
)

const appName = "rebound"

// Dirs are the per-user directories.
type Dirs struct {
	Config string // user configuration
	Data   string // attempt history
}

// ProjectDirs are the directories local to one working tree.
type ProjectDirs struct {
	Root    string // .rebound/
	Config  string // .rebound/config.yaml (committed)
	Local   string // .rebound/config.local.yaml (gitignored)
	History string // .rebound/history.db
}

// ResolveDirs returns platform-appropriate user directories. XDG variables
// take precedence over the platform defaults.
func ResolveDirs() *Dirs {
	return &Dirs{
		Config: resolveDir("XDG_CONFIG_HOME", platformConfigDefault()),
		Data:   resolveDir("XDG_DATA_HOME", platformDataDefault()),
	}
}

func resolveDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	return fallback
}

// ResolveProjectDirs returns project-local paths under projectRoot.
func ResolveProjectDirs(projectRoot string) *ProjectDirs {
	root := filepath.Join(projectRoot, "."+appName)
	return &ProjectDirs{
		Root:    root,
		Config:  filepath.Join(root, "config.yaml"),
		Local:   filepath.Join(root, "config.local.yaml"),
		History: filepath.Join(root, "history.db"),
	}
}

// ConfigDir returns a path under the config directory.
func (d *Dirs) ConfigDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Config}, subpath...)...)
}

// DataDir returns a path under the data directory.
func (d *Dirs) DataDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Data}, subpath...)...)
}

