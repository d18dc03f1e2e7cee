// Package workspace replaces the live workspace tree with archived content and
// reinstalls its dependencies.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bitrifttech/rose/internal/archive"
	"github.com/bitrifttech/rose/internal/sandbox"
)

// preserved names are kept in the live workspace across restores.
var preserved = map[string]bool{".git": true}

// Report describes a completed restore.
type Report struct {
	Install InstallReport `json:"install"`
	Warning string        `json:"warning,omitempty"`
}

// Restorer replaces the live workspace with the content of a zip archive.
type Restorer struct {
	root      *sandbox.Root
	installer *Installer
	ignore    []string
	logger    *slog.Logger

	mu sync.Mutex
}

// NewRestorer creates a restorer for root. Archive entries matching ignore
// (or archive.DefaultIgnore when empty) are dropped before the copy.
func NewRestorer(root *sandbox.Root, installer *Installer, ignore []string, logger *slog.Logger) *Restorer {
	if len(ignore) == 0 {
		ignore = archive.DefaultIgnore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Restorer{root: root, installer: installer, ignore: ignore, logger: logger}
}

// Restore stages data in a temporary directory, clears the live workspace
// except version control metadata, copies the staged tree in and runs the
// install step. A corrupt archive or an unreadable settings file fails before
// the live tree is touched; a corrupt archive error wraps archive.ErrCorrupt.
// Once the tree is swapped every install problem, cancellation included, is
// reported through Report.Warning.
func (r *Restorer) Restore(ctx context.Context, data []byte) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	staging, err := os.MkdirTemp("", "rose-restore-")
	if err != nil {
		return Report{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	stage, err := sandbox.New(staging)
	if err != nil {
		return Report{}, err
	}
	if err := archive.Extract(bytes.NewReader(data), int64(len(data)), stage); err != nil {
		return Report{}, fmt.Errorf("failed to extract archive: %w", err)
	}
	if err := prune(stage.Path(), r.ignore); err != nil {
		return Report{}, fmt.Errorf("failed to prune staged tree: %w", err)
	}

	// Settings travel with the archive; a broken file rejects the restore
	// while the live tree is still intact.
	if _, err := ReadSettings(stage.Path()); err != nil {
		return Report{}, err
	}

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	if err := r.clear(); err != nil {
		return Report{}, err
	}
	if err := r.copyIn(stage.Path()); err != nil {
		return Report{}, err
	}
	r.logger.Info("Workspace restored", "root", r.root.Path(), "bytes", len(data))

	report := Report{}
	if r.installer != nil {
		report.Install, err = r.installer.Install(ctx, r.root.Path())
		switch {
		case err != nil:
			// The tree is already swapped, so the restore stands.
			report.Warning = fmt.Sprintf("install step: %v", err)
			r.logger.Warn("Install step did not complete", "error", err)
		default:
			report.Warning = report.Install.Warning
		}
	}
	return report, nil
}

// prune removes every path under dir matching one of the patterns.
func prune(dir string, patterns []string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == "." {
			return err
		}
		name := filepath.ToSlash(rel)
		for _, pat := range patterns {
			if ok, _ := doublestar.Match(pat, name); ok {
				if err := os.RemoveAll(p); err != nil {
					return err
				}
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		return nil
	})
}

func (r *Restorer) clear() error {
	entries, err := os.ReadDir(r.root.Path())
	if err != nil {
		return fmt.Errorf("failed to read workspace: %w", err)
	}
	for _, e := range entries {
		if preserved[e.Name()] {
			continue
		}
		target, err := r.root.Resolve(e.Name())
		if err != nil {
			return err
		}
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to clear %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (r *Restorer) copyIn(src string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil || rel == "." {
			return err
		}
		target, err := r.root.Resolve(rel)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if err := copyRegular(p, target, info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to copy %s: %w", rel, err)
		}
		_ = os.Chtimes(target, info.ModTime(), info.ModTime())
		return nil
	})
}

func copyRegular(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
