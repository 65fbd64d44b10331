// Package digest computes BLAKE3 digests of files, directory trees and source
// sets. They fingerprint cache records: the build logic that produced a record
// and the installed tree it describes.
package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// File returns the hex-encoded BLAKE3 digest of the file at path. The file is
// streamed through the hasher so memory stays constant.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Tree returns the hex-encoded BLAKE3 digest of the directory tree rooted at
// root. Entry names, types, permission bits, file contents and symlink
// targets all contribute; modification times do not. Symlinks are not
// followed, so dangling links are fine.
func Tree(root string) (string, error) {
	h := blake3.New()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s\x00%o\x00", filepath.ToSlash(rel), info.Mode())
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "link\x00%s\x00", target)
		case info.Mode().IsRegular():
			sum, err := File(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "file\x00%s\x00", sum)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hashing tree %s: %w", root, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FS returns the hex-encoded BLAKE3 digest of the regular files of every
// tree in trees, in order. Only paths and contents contribute, so the same
// sources hash the same whether read from disk or embedded in any binary.
func FS(trees ...fs.FS) (string, error) {
	h := blake3.New()
	for i, fsys := range trees {
		err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.Type().IsRegular() {
				return err
			}
			data, err := fs.ReadFile(fsys, path)
			if err != nil {
				return err
			}
			sum := blake3.Sum256(data)
			fmt.Fprintf(h, "%d\x00%s\x00%x\x00", i, path, sum)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("hashing sources: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
