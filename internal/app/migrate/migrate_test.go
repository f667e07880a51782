package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestNewRejectsMissingDependencies(t *testing.T) {
	if _, err := New(nil, os.DirFS("."), nil); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}

func TestSourceFallsBackToEmbedded(t *testing.T) {
	src, err := Source(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	matches, err := fs.Glob(src, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("expected embedded migrations")
	}
}

func TestSourcePrefersDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "00002_extra.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, err := Source(dir)
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if _, err := fs.Stat(src, "00002_extra.sql"); err != nil {
		t.Fatalf("expected on-disk migration: %v", err)
	}
}
