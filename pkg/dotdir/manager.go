// Package dotdir locates the .threads directory that holds config.toml, the
// client session saved by "threads login" and, for local servers, the
// database and blobs.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName = ".threads"

	// EnvHome names a directory that replaces every default location.
	EnvHome = "THREADS_HOME"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target resolves and creates the threads directory, trying in order:
//  1. overrideDir
//  2. $THREADS_HOME
//  3. ./.threads when it exists
//  4. ~/.threads
func (m *Manager) Target(overrideDir string) (string, error) {
	dir, err := m.resolve(overrideDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating threads directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// Path returns name inside the resolved threads directory.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (m *Manager) resolve(overrideDir string) (string, error) {
	if overrideDir != "" {
		return overrideDir, nil
	}
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if info, err := os.Stat(filepath.Join(cwd, dirName)); err == nil && info.IsDir() {
		return filepath.Join(cwd, dirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}
