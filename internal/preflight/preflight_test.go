package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"runwatch/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckWritableParent(t *testing.T) {
	base := t.TempDir()
	if r := CheckWritableParent("db", filepath.Join(base, "a", "b", "history.db")); !r.Passed {
		t.Fatalf("expected pass through missing parents, got: %s", r.Detail)
	}
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckWritableParent("db", filepath.Join(blocker, "history.db")); r.Passed {
		t.Fatal("expected failure when parent is a file")
	}
}

func TestCheckStorageCLIMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	r := CheckStorageCLI(context.Background(), "aws")
	if r.Passed {
		t.Fatal("expected failure when aws is not on PATH")
	}
}

func TestRunAllSkipsDisabledHistory(t *testing.T) {
	base := t.TempDir()
	t.Setenv("PATH", base)
	cfg := config.Default()
	cfg.Paths.LogDir = base
	cfg.Paths.ResultDir = filepath.Join(base, "missing")
	cfg.Paths.HistoryDB = ""

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(results), results)
	}
	failed := Failed(results)
	if len(failed) != 2 || failed[0].Name != "Result directory" || failed[1].Name != "Storage CLI" {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}
