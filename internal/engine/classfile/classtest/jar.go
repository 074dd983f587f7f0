package classtest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteJar writes the given units into dir/name and returns the path.
func WriteJar(t testing.TB, dir, name string, classes ...*Class) string {
	t.Helper()
	entries := make(map[string][]byte, len(classes))
	for _, c := range classes {
		entries[c.EntryName()] = c.Bytes()
	}
	return WriteZip(t, dir, name, entries)
}

// WriteZip writes raw entries into dir/name.
func WriteZip(t testing.TB, dir, name string, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	zw := zip.NewWriter(f)
	for entry, data := range entries {
		w, err := zw.Create(entry)
		if err != nil {
			t.Fatalf("create entry %s: %v", entry, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write entry %s: %v", entry, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
	return path
}

// WriteClassFile writes the unit under root using its package directories
// and returns the path.
func WriteClassFile(t testing.TB, root string, c *Class) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(c.EntryName()))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, c.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// EntryName is the archive path of the unit, e.g. "com/lib/Widget.class".
func (c *Class) EntryName() string {
	return c.name + ".class"
}

// Name is the dot-qualified class name.
func (c *Class) Name() string {
	return strings.ReplaceAll(c.name, "/", ".")
}
