package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree creates files under root. Keys are slash-separated paths
// relative to root; parent directories are created as needed.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("creating parent of %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", rel, err)
		}
	}
}

// MkdirAll creates directories under root.
func MkdirAll(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0755); err != nil {
			t.Fatalf("creating %s: %v", d, err)
		}
	}
}

// RemovePath deletes a file or directory tree under root.
func RemovePath(t *testing.T, root, rel string) {
	t.Helper()
	if err := os.RemoveAll(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
		t.Fatalf("removing %s: %v", rel, err)
	}
}

// DataDir lays out an empty data directory with the scenes, collections
// and webapps roots and returns its path.
func DataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	MkdirAll(t, dir, "scenes", "collections", "webapps")
	return dir
}
