// Package safeio holds the file reads and writes that need extra care:
// artifact reads confined to the artifacts directory and report files that
// must never be left half written.
package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideBase is returned when a path resolves outside its base directory.
var ErrOutsideBase = errors.New("file path is outside base directory")

// ReadFileContained reads a file only if it is contained within baseDir.
// Symlinks are resolved before the check, so a link pointing out of baseDir
// is rejected as well.
func ReadFileContained(baseDir, filePath string) ([]byte, error) {
	base, err := resolve(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	target, err := resolve(filePath)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(base, target)
	if err != nil {
		return nil, ErrOutsideBase
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, ErrOutsideBase
	}

	// #nosec G304 -- target has been verified to be contained within base
	return os.ReadFile(target)
}

func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// WriteFileAtomic writes data to a temporary file next to path and renames it
// into place. An existing file keeps its mode; a new one gets 0644.
func WriteFileAtomic(path string, data []byte) error {
	var mode os.FileMode = 0o644
	if st, err := os.Stat(path); err == nil {
		if m := st.Mode() & 0o777; m != 0 {
			mode = m
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
