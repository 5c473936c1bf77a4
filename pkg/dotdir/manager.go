// Package dotdir manages the .engram/ and ~/.engram directories.
//
// The dot directory holds the persistent CLI state: config.toml,
// credentials.toml, the default sqlite database, and the ingest ledger the
// directory watcher uses to skip window files it has already processed.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the engram directory.
	dirName = ".engram"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .engram/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.engram/ dir
//  3. Home ~/.engram/ dir
//
// When no override is given and neither directory exists, Target returns
// an empty path; callers fall back to defaults or create one via Init.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating engram directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, dirName)
		if existingDir(local) {
			return local, nil
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, dirName)
		if existingDir(dir) {
			return dir, nil
		}
	}

	return "", nil
}

// Init creates a .engram/ directory and returns its absolute path.
// With an override the directory is created there; otherwise it lands in
// the user's home. Existing directories are left untouched.
func (m *Manager) Init(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating engram directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating engram directory %s: %w", dir, err)
	}

	return dir, nil
}

func existingDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
