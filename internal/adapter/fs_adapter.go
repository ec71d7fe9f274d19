// Package adapter contains the infrastructure adapters of the fuzzing harness:
// filesystem access, target execution, binary diffing and artifact storage.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	m "shaker.dev/pkg/shaker/internal/model"
)

// FSAdapter abstracts the filesystem operations the domain layer relies on. It
// hides direct `os` access so the workflow logic can be tested without touching
// the disk.
//
//nolint:interfacebloat // A richer interface keeps workflow logic decoupled from os/fs.
type FSAdapter interface {
	// Walk traverses root recursively in lexical order.
	Walk(ctx context.Context, root m.Path, fn fs.WalkDirFunc) error

	// ReadFile loads a file from disk and returns its contents.
	ReadFile(ctx context.Context, path m.Path) ([]byte, error)

	// WriteFile writes content to a file with the given permissions.
	WriteFile(ctx context.Context, path m.Path, content []byte, perm os.FileMode) error

	// OpenAppend opens path for appending, creating it when missing.
	OpenAppend(ctx context.Context, path m.Path) (io.WriteCloser, error)

	// Remove deletes a single file.
	Remove(ctx context.Context, path m.Path) error

	// MkdirAll creates a directory and its parents.
	MkdirAll(ctx context.Context, path m.Path) error

	// Move relocates src to dst, copying across devices when rename cannot.
	Move(ctx context.Context, src, dst m.Path) error

	// JoinPath joins path elements into a single path.
	JoinPath(ctx context.Context, elem ...string) m.Path
}

// LocalFSAdapter is the os-backed FSAdapter.
type LocalFSAdapter struct{}

// NewLocalFSAdapter constructs a LocalFSAdapter instance ready to be wired into
// the workflow.
func NewLocalFSAdapter() *LocalFSAdapter {
	return &LocalFSAdapter{}
}

// Walk iterates over every entry under root, descending into subdirectories.
func (a *LocalFSAdapter) Walk(ctx context.Context, root m.Path, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(string(root), func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return fn(path, d, err)
	})
}

// ReadFile loads file contents from disk.
func (a *LocalFSAdapter) ReadFile(_ context.Context, path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// WriteFile writes content to a file with the given permissions.
func (a *LocalFSAdapter) WriteFile(_ context.Context, path m.Path, content []byte, perm os.FileMode) error {
	return os.WriteFile(string(path), content, perm)
}

// OpenAppend opens path for appending.
func (a *LocalFSAdapter) OpenAppend(_ context.Context, path m.Path) (io.WriteCloser, error) {
	// #nosec G304 - the main log path comes from the operator's configuration
	return os.OpenFile(string(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Remove deletes a single file.
func (a *LocalFSAdapter) Remove(_ context.Context, path m.Path) error {
	return os.Remove(string(path))
}

// MkdirAll creates a directory and any missing parents.
func (a *LocalFSAdapter) MkdirAll(_ context.Context, path m.Path) error {
	return os.MkdirAll(string(path), 0o750)
}

// Move renames src to dst. When the two live on different devices the file is
// copied and the source removed afterwards, so src only disappears once dst is
// complete.
func (a *LocalFSAdapter) Move(_ context.Context, src, dst m.Path) error {
	err := os.Rename(string(src), string(dst))
	if err == nil {
		return nil
	}

	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	slog.Debug("rename crosses devices, copying instead", "src", src, "dst", dst)

	if err := a.copyFile(string(src), string(dst)); err != nil {
		return fmt.Errorf("copy across devices: %w", err)
	}

	return os.Remove(string(src))
}

// copyFile copies a single file, preserving its mode.
func (a *LocalFSAdapter) copyFile(src, dst string) error {
	// #nosec G304 - src is a candidate written by this process
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() { _ = sourceFile.Close() }()

	info, err := sourceFile.Stat()
	if err != nil {
		return err
	}

	// #nosec G304 - dst lives in the configured crash archive
	destFile, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		_ = destFile.Close()
		_ = os.Remove(dst)

		return err
	}

	return destFile.Close()
}

// JoinPath joins path elements into a single path.
func (a *LocalFSAdapter) JoinPath(_ context.Context, elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}
