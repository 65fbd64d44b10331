package lttng

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestFileHelpers(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "trace", "out.txt")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("one\ntwo event:foo\nthree"), 0o644); err != nil {
		t.Fatal(err)
	}

	if n, err := LineCount(path); err != nil || n != 3 {
		t.Errorf("LineCount() = %d, %v; want 3", n, err)
	}
	if ok, err := FileContains(path, "missing", "event:foo"); err != nil || !ok {
		t.Errorf("FileContains() = %v, %v", ok, err)
	}
	if ok, _ := FileContains(path, "absent"); ok {
		t.Error("FileContains() found an absent string")
	}

	if got, err := FindFile(root, "out.txt"); err != nil || got != path {
		t.Errorf("FindFile() = %q, %v", got, err)
	}
	if got, err := FindDir(root, "race"); err != nil || got != filepath.Dir(path) {
		t.Errorf("FindDir() = %q, %v", got, err)
	}
	if got, err := FindFile(root, "nope"); err != nil || got != "" {
		t.Errorf("FindFile(nope) = %q, %v", got, err)
	}

	empty := filepath.Join(root, "empty")
	if err := CreateEmptyFile(empty); err != nil {
		t.Fatalf("CreateEmptyFile: %v", err)
	}
	if n, _ := LineCount(empty); n != 0 {
		t.Errorf("LineCount(empty) = %d", n)
	}
	if err := CreateEmptyFile(empty); !errors.Is(err, fs.ErrExist) {
		t.Errorf("second CreateEmptyFile() = %v, want fs.ErrExist", err)
	}
}
