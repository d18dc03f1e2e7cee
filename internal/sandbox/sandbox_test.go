package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrifttech/rose/internal/service"
)

func testRoot(t *testing.T) *Root {
	t.Helper()
	root, err := New(filepath.Join(t.TempDir(), "app"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return root
}

func TestResolve_InsideRoot(t *testing.T) {
	root := testRoot(t)

	cases := map[string]string{
		"":                root.Path(),
		".":               root.Path(),
		"src/index.js":    filepath.Join(root.Path(), "src", "index.js"),
		"a/../b.txt":      filepath.Join(root.Path(), "b.txt"),
		"/etc/passwd":     filepath.Join(root.Path(), "etc", "passwd"),
		"./nested/./dir/": filepath.Join(root.Path(), "nested", "dir"),
	}
	for in, want := range cases {
		got, err := root.Resolve(in)
		if err != nil {
			t.Errorf("Resolve(%q) unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolve_RejectsTraversal(t *testing.T) {
	root := testRoot(t)

	for _, in := range []string{
		"..",
		"../../etc/passwd",
		"src/../../outside",
		"../" + filepath.Base(root.Path()) + "-sibling/file",
	} {
		_, err := root.Resolve(in)
		if !errors.Is(err, service.ErrAccessDenied) {
			t.Errorf("Resolve(%q) error = %v, want ErrAccessDenied", in, err)
		}
	}
}

func TestResolve_RejectsSymlinkEscape(t *testing.T) {
	root := testRoot(t)
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root.Path(), "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := root.Resolve("link/secret.txt"); !errors.Is(err, service.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied through symlink, got %v", err)
	}
}

func TestResolve_DoesNotTouchFilesystem(t *testing.T) {
	root := testRoot(t)

	if _, err := root.Resolve("new/deep/file.txt"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root.Path(), "new")); !os.IsNotExist(err) {
		t.Fatalf("Resolve must not create directories, stat err = %v", err)
	}
}

func TestRel(t *testing.T) {
	root := testRoot(t)

	rel, err := root.Rel(filepath.Join(root.Path(), "a", "b.txt"))
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	if rel != "a/b.txt" {
		t.Errorf("Rel = %q, want a/b.txt", rel)
	}
	if _, err := root.Rel("/somewhere/else"); !errors.Is(err, service.ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
}
