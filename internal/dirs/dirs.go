// Package dirs provides idempotent filesystem primitives for the run root.
//
// None of the operations treat the absence of a target as an error: absence is
// an observable state. Errors are only returned for I/O or permission failures,
// so "does not exist" and "could not look" are never conflated.
package dirs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DirPerm is the permission used for directories created by EnsureDir.
const DirPerm = 0755

// EnsureDir creates path (and any missing parents) if it does not exist.
// It is a no-op when path is already a directory.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, DirPerm); err != nil {
		return fmt.Errorf("ensure dir %s: %w", path, err)
	}
	return nil
}

// RemoveDir recursively deletes path. It is a no-op when path is absent.
func RemoveDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove dir %s: %w", path, err)
	}
	return nil
}

// ResetDir removes path and recreates it empty.
//
// Must be called before every launch whose run is later located by scanning
// the root, otherwise "most recent run" is undefined among several matches.
func ResetDir(path string) error {
	if err := RemoveDir(path); err != nil {
		return err
	}
	return EnsureDir(path)
}

// DirExists reports whether path exists and is a directory.
// A regular file at path reports false.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.IsDir(), nil
}

// IsEmpty reports whether the directory at path has no entries.
// An absent path is empty.
func IsEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// Read a single entry; io.EOF means the directory is empty.
	_, err = f.ReadDir(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read dir %s: %w", path, err)
	}
	return false, nil
}

// ContainsEntry reports whether dir has an entry called name, of any type.
func ContainsEntry(dir, name string) (bool, error) {
	p := filepath.Join(dir, name)
	_, err := os.Lstat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lstat %s: %w", p, err)
	}
	return true, nil
}
