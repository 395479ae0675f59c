// Package local implements a blob Store on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/threads/pkg/blob"
)

// Store writes blobs below a directory and serves them under BaseURL.
type Store struct {
	dir     string
	baseURL string
}

// New creates the directory if needed.
func New(dir, baseURL string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("blob directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory blobs are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes data to dir/key. Keys may not escape the directory.
func (s *Store) Put(_ context.Context, data []byte, key, _ string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}

	target := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}

	return s.baseURL + "/" + filepath.ToSlash(clean), nil
}

var _ blob.Store = (*Store)(nil)
