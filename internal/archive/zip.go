// Package archive builds and extracts zip archives of a workspace tree.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zip"

	"github.com/bitrifttech/rose/internal/sandbox"
)

// DefaultIgnore lists the paths left out of snapshots. Dependency trees are
// rebuilt by the install step on restore.
var DefaultIgnore = []string{"**/node_modules", "**/.next"}

// ErrCorrupt is returned for archives that cannot be read.
var ErrCorrupt = errors.New("corrupt archive")

// Build writes a zip of the tree at root to w. Paths matching any of the
// doublestar patterns in ignore are skipped along with their contents.
func Build(w io.Writer, root string, ignore []string) error {
	for _, p := range ignore {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid ignore pattern %q", p)
		}
	}

	zw := zip.NewWriter(w)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if ignored(name, ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		// Symlinks and devices are not carried into snapshots.
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
			hdr.Method = zip.Store
		} else {
			hdr.Method = zip.Deflate
		}

		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyFile(fw, p)
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to archive %s: %w", root, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

func ignored(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func copyFile(w io.Writer, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Extract unpacks the zip in r into dest. Every entry is resolved through the
// sandbox, an entry escaping it aborts extraction with service.ErrAccessDenied.
func Extract(r io.ReaderAt, size int64, dest *sandbox.Root) error {
	// Insecure entry names come back as an error alongside a usable reader,
	// the sandbox rejects them per entry below.
	zr, err := zip.NewReader(r, size)
	if zr == nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	for _, f := range zr.File {
		name := path.Clean(strings.ReplaceAll(f.Name, `\`, "/"))
		target, err := dest.Resolve(name)
		if err != nil {
			return err
		}
		if err := extractEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, target string) error {
	mode := f.Mode()
	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", f.Name, err)
		}
		return nil
	}
	if mode&fs.ModeSymlink != 0 || !mode.IsRegular() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", f.Name, err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, f.Name, err)
	}
	defer rc.Close()

	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, f.Name, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if mt := f.Modified; !mt.IsZero() {
		_ = os.Chtimes(target, mt, mt)
	}
	return nil
}
