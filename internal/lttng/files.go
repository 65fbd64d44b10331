package lttng

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LineCount returns the number of lines of the file at path.
func LineCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			n++
		}
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// FileContains reports whether a line of the file at path contains one of
// the strings.
func FileContains(path string, strs ...string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		for _, s := range strs {
			if bytes.Contains(sc.Bytes(), []byte(s)) {
				return true, nil
			}
		}
	}
	return false, sc.Err()
}

func find(root, suffix string, dir bool) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && d.IsDir() == dir && strings.HasSuffix(d.Name(), suffix) {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", nil
	}
	return filepath.Abs(found)
}

// FindFile returns the absolute path of the last file below root whose name
// ends with suffix, or "" when none does.
func FindFile(root, suffix string) (string, error) { return find(root, suffix, false) }

// FindDir is FindFile for directories.
func FindDir(root, suffix string) (string, error) { return find(root, suffix, true) }

// CreateEmptyFile creates an empty file at path, which must not exist.
func CreateEmptyFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return f.Close()
}
