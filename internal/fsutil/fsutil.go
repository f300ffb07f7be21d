// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fsutil writes worker artifacts through a local temporary file and
// relocates them atomically, so no reader ever observes a partial file.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// TempFile creates an empty file in dir (os.TempDir() when empty) and returns
// its path.
func TempFile(dir, pattern string) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating temp directory: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	slog.Debug("local temporary file", "path", name)
	return name, nil
}

// MoveFile relocates src to dst, creating dst's directory. A rename is tried
// first; across filesystems the data is copied next to dst and renamed into
// place. src is removed in both cases.
func MoveFile(src, dst string) error {
	slog.Debug("moving temp file to final location", "from", src, "to", dst)
	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	staged, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return fmt.Errorf("staging %s: %w", dst, err)
	}
	stagedPath := staged.Name()

	if err := copyInto(staged, src); err != nil {
		staged.Close()
		os.Remove(stagedPath)
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	if err := staged.Close(); err != nil {
		os.Remove(stagedPath)
		return err
	}
	if err := os.Rename(stagedPath, dst); err != nil {
		os.Remove(stagedPath)
		return fmt.Errorf("renaming into %s: %w", dst, err)
	}
	return os.Remove(src)
}

func copyInto(dst *os.File, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if _, err := io.Copy(dst, in); err != nil {
		return err
	}
	return dst.Sync()
}

// RemoveIfExists deletes path, ignoring a missing file.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
