package targets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haukened/rr-block/internal/block/common/log"
)

func TestLoad_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.list")
	if err := os.WriteFile(path, []byte("example.com\nexample.org\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path, log.NewNoopLogger())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(got))
	}
	if got[0].Source != path {
		t.Errorf("Source = %q, want %q", got[0].Source, path)
	}
}

func TestLoad_MissingFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.list")

	got, err := Load(path, log.NewNoopLogger())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(got) != len(DefaultList) {
		t.Fatalf("expected %d builtin targets, got %d", len(DefaultList), len(got))
	}
	for i, tgt := range got {
		if tgt.Source != BuiltinSource {
			t.Errorf("target[%d].Source = %q, want %q", i, tgt.Source, BuiltinSource)
		}
	}
}

func TestLoad_UnreadableFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	// a directory opens fine but fails on read; use a permission error instead
	path := filepath.Join(dir, "targets.list")
	if err := os.WriteFile(path, []byte("example.com\n"), 0o000); err != nil {
		t.Fatal(err)
	}
	if os.Geteuid() == 0 {
		t.Skip("permission bits are advisory for root")
	}

	if _, err := Load(path, log.NewNoopLogger()); err == nil {
		t.Fatal("expected error for unreadable file, got nil")
	}
}
