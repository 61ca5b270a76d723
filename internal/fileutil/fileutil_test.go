package fileutil

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicCreatesDirectoryAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.txt")

	if err := WriteFileAtomic(path, []byte("first"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("content mismatch: got %q", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestWriteJSONAtomicIndents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	if err := WriteJSONAtomic(path, map[string]any{"a": 1}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{\n  \"a\": 1\n}\n" {
		t.Fatalf("unexpected encoding %q", data)
	}
	var decoded map[string]int
	if err := json.Unmarshal(data, &decoded); err != nil || decoded["a"] != 1 {
		t.Fatalf("round trip failed: %v %v", decoded, err)
	}
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.log")
	dst := filepath.Join(dir, "copies", "dst.log")

	content := []byte(strings.Repeat("line\n", 1000))
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFileVerified(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestVerifyCopyRejectsCorruptedDestination(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.log")
	content := []byte("line one\nline two\n")
	sum := sha256.Sum256(content)

	corrupted := append([]byte(nil), content...)
	corrupted[0] = 'L'
	if err := os.WriteFile(dst, corrupted, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := verifyCopy(dst, int64(len(content)), sum[:]); err == nil {
		t.Fatal("expected hash mismatch for corrupted copy")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("corrupted copy should be removed, stat err=%v", err)
	}

	if err := os.WriteFile(dst, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := verifyCopy(dst, int64(len(content)), sum[:]); err != nil {
		t.Fatalf("intact copy rejected: %v", err)
	}
}
