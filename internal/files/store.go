// Package files implements sandboxed file operations on the workspace tree.
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bitrifttech/rose/internal/sandbox"
	"github.com/bitrifttech/rose/internal/service"
)

// FileEntry describes one child of a directory.
type FileEntry struct {
	Name        string    `json:"name"`
	IsDirectory bool      `json:"isDirectory"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
}

// Store performs file operations relative to a workspace root.
type Store struct {
	root *sandbox.Root
}

// NewStore creates a Store bound to root.
func NewStore(root *sandbox.Root) *Store {
	return &Store{root: root}
}

// Root returns the sandbox the store operates in.
func (s *Store) Root() *sandbox.Root {
	return s.root
}

// Stat reports whether path is a directory.
func (s *Store) Stat(path string) (isDir bool, err error) {
	full, err := s.root.Resolve(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return false, wrapFS(path, err)
	}
	return info.IsDir(), nil
}

// List returns the children of a directory. Order is whatever the OS returns.
func (s *Store) List(path string) ([]FileEntry, error) {
	full, err := s.root.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, wrapFS(path, err)
	}

	result := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		result = append(result, FileEntry{
			Name:        e.Name(),
			IsDirectory: e.IsDir(),
			Size:        info.Size(),
			Modified:    info.ModTime(),
		})
	}
	return result, nil
}

// Read returns the content of a file.
func (s *Store) Read(path string) (string, error) {
	full, err := s.root.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", wrapFS(path, err)
	}
	return string(data), nil
}

// Write creates a file or directory, creating missing parents.
func (s *Store) Write(path, content string, isDirectory bool) error {
	full, err := s.root.Resolve(path)
	if err != nil {
		return err
	}
	if isDirectory {
		if err := os.MkdirAll(full, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Update overwrites an existing location. Parents are not created.
func (s *Store) Update(path, content string) error {
	full, err := s.root.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return wrapFS(path, err)
	}
	return nil
}

// Delete removes path recursively. A missing path is not an error.
func (s *Store) Delete(path string) error {
	full, err := s.root.Resolve(path)
	if err != nil {
		return err
	}
	if full == s.root.Path() {
		return &service.ValidationError{Message: "cannot delete the workspace root"}
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// Remove removes path recursively and fails with NotFound if it is missing.
func (s *Store) Remove(path string) error {
	full, err := s.root.Resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(full); err != nil {
		return wrapFS(path, err)
	}
	return s.Delete(path)
}

// Move renames source to target. The target's parent must already exist.
func (s *Store) Move(source, target string) error {
	src, err := s.root.Resolve(source)
	if err != nil {
		return err
	}
	dst, err := s.root.Resolve(target)
	if err != nil {
		return err
	}
	if src == s.root.Path() {
		return &service.ValidationError{Message: "cannot move the workspace root"}
	}
	if _, err := os.Lstat(src); err != nil {
		return wrapFS(source, err)
	}
	if _, err := os.Stat(filepath.Dir(dst)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return service.NotFoundf("target directory of %s", target)
		}
		return fmt.Errorf("stat target directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", source, target, err)
	}
	return nil
}

func wrapFS(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return service.NotFoundf("%s", path)
	}
	return fmt.Errorf("%s: %w", path, err)
}
