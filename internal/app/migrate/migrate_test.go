package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestMigrationSourceEmbedded(t *testing.T) {
	fsys, source, err := migrationSource("")
	if err != nil {
		t.Fatalf("embedded source: %v", err)
	}
	if source != "embedded" {
		t.Fatalf("unexpected source %q", source)
	}
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected embedded migrations, got %v", names)
	}
}

func TestMigrationSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "00001_init.sql"), []byte("-- +goose Up\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fsys, source, err := migrationSource(dir)
	if err != nil {
		t.Fatalf("dir source: %v", err)
	}
	if source != dir {
		t.Fatalf("unexpected source %q", source)
	}
	if _, err := fs.Stat(fsys, "00001_init.sql"); err != nil {
		t.Fatalf("stat migration: %v", err)
	}

	if _, _, err := migrationSource(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
	if _, _, err := migrationSource(filepath.Join(dir, "00001_init.sql")); err == nil {
		t.Fatalf("expected error for file path")
	}
}

func TestNewRequiresPool(t *testing.T) {
	if _, err := New(nil, "", nil); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}
