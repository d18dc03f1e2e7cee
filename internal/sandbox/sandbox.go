// Package sandbox confines filesystem paths to a workspace root.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrifttech/rose/internal/service"
)

// Root is an immutable workspace boundary. Every path handed to the OS by the
// runtime is produced by Resolve.
type Root struct {
	path string
}

// New makes root absolute, creates it if needed and resolves symlinks so that
// prefix checks compare real paths.
func New(root string) (*Root, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	return &Root{path: real}, nil
}

// Path returns the absolute workspace root.
func (r *Root) Path() string {
	return r.path
}

// Resolve joins rel under the root and returns the absolute path, or an error
// wrapping service.ErrAccessDenied when the result falls outside the root.
// It never creates or modifies anything.
func (r *Root) Resolve(rel string) (string, error) {
	full := filepath.Join(r.path, rel)
	if !r.contains(full) {
		return "", fmt.Errorf("%q: %w", rel, service.ErrAccessDenied)
	}

	// A symlink inside the workspace must not lead outside of it.
	existing, err := deepestExisting(full)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", rel, err)
	}
	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", rel, err)
	}
	if !r.contains(real) {
		return "", fmt.Errorf("%q: %w", rel, service.ErrAccessDenied)
	}
	return full, nil
}

// Rel returns abs relative to the root using forward slashes.
func (r *Root) Rel(abs string) (string, error) {
	if !r.contains(abs) {
		return "", fmt.Errorf("%q: %w", abs, service.ErrAccessDenied)
	}
	rel, err := filepath.Rel(r.path, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (r *Root) contains(p string) bool {
	return p == r.path || strings.HasPrefix(p, r.path+string(filepath.Separator))
}

// deepestExisting walks up from p until it finds a path that exists.
func deepestExisting(p string) (string, error) {
	for {
		_, err := os.Lstat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p, nil
		}
		p = parent
	}
}
