package project

import (
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const rpathStep = "rpath-strip"

// stripRpath removes the RPATH/RUNPATH entries of every ELF file installed in
// bin and lib.
func (p *Project) stripRpath(ctx context.Context) error {
	a := p.tools()
	for _, ext := range []string{"out", "err"} {
		if err := os.WriteFile(a.LogFile(rpathStep, ext), nil, 0o644); err != nil {
			return err
		}
	}

	note := func(format string, args ...any) error {
		f, err := os.OpenFile(a.LogFile(rpathStep, "err"), os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = fmt.Fprintf(f, format+"\n", args...)
		return err
	}

	for _, dir := range []string{"bin", "lib"} {
		root := filepath.Join(p.InstallPath, dir)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root && errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !d.Type().IsRegular() {
				return note("skip %s, not a regular file", path)
			}
			if !isELF(path) {
				return note("skip %s, is not an ELF", path)
			}
			if err := a.Append(ctx, rpathStep, a.Tools().Chrpath, "-d", path); err != nil {
				return p.stepError(rpathStep, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func isELF(path string) bool {
	f, err := elf.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
