// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package redactors

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"obscura/internal/observability"
)

// tempPattern names in-progress files so they are recognizable if a crash
// leaves one behind.
const tempPattern = ".obscura-*.tmp"

// OutputManager writes output files so that readers never observe a partial
// file: data goes to a temporary file in the destination directory, is synced,
// and is then moved into place.
type OutputManager struct {
	// observer handles observability and metrics
	observer *observability.StandardObserver
}

// NewOutputManager creates a new OutputManager
func NewOutputManager(observer *observability.StandardObserver) *OutputManager {
	return &OutputManager{observer: observer}
}

// GetComponentName returns the component name for observability
func (om *OutputManager) GetComponentName() string {
	return "output_manager"
}

// EnsureDirectoryExists creates the parent directory of path if needed
func (om *OutputManager) EnsureDirectoryExists(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", dir)
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// TempFile creates an empty temporary file beside path. The caller removes it.
func (om *OutputManager) TempFile(path string) (string, error) {
	if err := om.EnsureDirectoryExists(path); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(path), tempPattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	return name, nil
}

// WriteAtomic writes path through write, replacing any existing file only
// once the new content is complete and synced.
func (om *OutputManager) WriteAtomic(path string, write func(w io.Writer) error) (err error) {
	finishTiming := om.observer.StartTiming(om.GetComponentName(), "write_atomic", path)
	defer func() { finishTiming(err == nil, nil) }()

	tmp, err := om.writeTemp(path, write)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

// CreateExclusive writes a new file at path through write. It fails with an
// error matching os.ErrExist if path already exists, and never leaves a
// partial file at path.
func (om *OutputManager) CreateExclusive(path string, write func(w io.Writer) error) (err error) {
	finishTiming := om.observer.StartTiming(om.GetComponentName(), "create_exclusive", path)
	defer func() { finishTiming(err == nil, nil) }()

	tmp, err := om.writeTemp(path, write)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	// a hard link fails if the target exists, unlike rename
	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("refusing to overwrite %s: %w", path, os.ErrExist)
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst atomically.
func (om *OutputManager) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	return om.WriteAtomic(dst, func(w io.Writer) error {
		if _, err := io.Copy(w, in); err != nil {
			return fmt.Errorf("failed to copy file contents: %w", err)
		}
		return nil
	})
}

func (om *OutputManager) writeTemp(path string, write func(w io.Writer) error) (string, error) {
	if err := om.EnsureDirectoryExists(path); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(filepath.Dir(path), tempPattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	name := f.Name()

	fail := func(err error) (string, error) {
		f.Close()
		_ = os.Remove(name)
		return "", err
	}

	if err := write(f); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync temporary file: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to set permissions: %w", err)
	}
	return name, nil
}
