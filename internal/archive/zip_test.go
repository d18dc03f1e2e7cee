package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/bitrifttech/rose/internal/sandbox"
	"github.com/bitrifttech/rose/internal/service"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

func TestBuildHonoursIgnore(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"package.json":                   "{}",
		"src/index.js":                   "console.log(1)",
		"node_modules/left-pad/index.js": "x",
		"web/node_modules/a.js":          "x",
		".next/cache":                    "x",
		".git/HEAD":                      "ref: refs/heads/main",
	})

	var buf bytes.Buffer
	if err := Build(&buf, src, DefaultIgnore); err != nil {
		t.Fatalf("Build: %v", err)
	}

	got := entryNames(t, buf.Bytes())
	want := []string{".git/HEAD", "package.json", "src/index.js"}
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entries = %v, want %v", got, want)
			break
		}
	}
}

func TestBuildRejectsBadPattern(t *testing.T) {
	var buf bytes.Buffer
	if err := Build(&buf, t.TempDir(), []string{"[unclosed"}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":        "alpha",
		"dir/b.txt":    "beta",
		"dir/sub/c.sh": "#!/bin/sh\necho c",
	})
	if err := os.Chmod(filepath.Join(src, "dir/sub/c.sh"), 0755); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Build(&buf, src, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}

	dest, err := sandbox.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	if err := Extract(bytes.NewReader(data), int64(len(data)), dest); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for name, want := range map[string]string{"a.txt": "alpha", "dir/b.txt": "beta"} {
		got, err := os.ReadFile(filepath.Join(dest.Path(), name))
		if err != nil || string(got) != want {
			t.Errorf("%s = %q, %v; want %q", name, got, err, want)
		}
	}
	info, err := os.Stat(filepath.Join(dest.Path(), "dir/sub/c.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Errorf("executable bit lost: %v", info.Mode())
	}
}

func TestExtractRejectsZipSlip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../../evil.txt")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("pwned"))
	zw.Close()

	parent := t.TempDir()
	dest, err := sandbox.New(filepath.Join(parent, "a", "b"))
	if err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	err = Extract(bytes.NewReader(data), int64(len(data)), dest)
	if !errors.Is(err, service.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !os.IsNotExist(err) {
		t.Error("zip-slip entry must not be written")
	}
}

func TestExtractCorrupt(t *testing.T) {
	dest, err := sandbox.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	junk := []byte("definitely not a zip")
	if err := Extract(bytes.NewReader(junk), int64(len(junk)), dest); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
