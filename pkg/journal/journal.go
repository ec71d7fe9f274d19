// Package journal provides an append-only, gob-encoded record file.
package journal

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ErrReadOnly is returned when appending to a journal opened for reading.
var ErrReadOnly = errors.New("journal is read-only")

// Journal is an append-only sequence of items of type T stored in one file.
// Appends are serialized, so concurrent writers never interleave records.
type Journal[T any] interface {
	Len() uint64
	Path() string
	Append(item T) error
	Get(index uint64) (T, error)
	Range(f func(index uint64, item T) error) error
	Close() error
}

type fileJournal[T any] struct {
	path    string
	file    *os.File
	encoder *gob.Encoder
	mu      sync.Mutex
	length  uint64
}

// Create starts a new journal at path, truncating any previous content.
func Create[T any](path string) (Journal[T], error) {
	// #nosec G304 - journal lives in the session directory
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		slog.Error("failed to create journal", "path", path, "error", err)
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}

	slog.Debug("created journal", "path", path)

	return &fileJournal[T]{
		path:    path,
		file:    file,
		encoder: gob.NewEncoder(file),
	}, nil
}

// Open loads an existing journal for reading.
func Open[T any](path string) (Journal[T], error) {
	j := &fileJournal[T]{path: path}

	err := j.scan(func(uint64, T) error {
		j.length++
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("opened journal", "path", path, "length", j.length)

	return j, nil
}

// Append implements Journal.
func (j *fileJournal[T]) Append(item T) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.encoder == nil {
		return ErrReadOnly
	}

	if err := j.encoder.Encode(item); err != nil {
		slog.Error("failed to encode item", "path", j.path, "index", j.length, "error", err)
		return fmt.Errorf("failed to encode item: %w", err)
	}

	j.length++

	return nil
}

// Path implements Journal.
func (j *fileJournal[T]) Path() string {
	return j.path
}

// Len implements Journal.
func (j *fileJournal[T]) Len() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.length
}

// Get implements Journal.
func (j *fileJournal[T]) Get(index uint64) (T, error) {
	var (
		found T
		zero  T
	)

	if length := j.Len(); index >= length {
		return zero, fmt.Errorf("index %d out of bounds (length %d)", index, length)
	}

	errStop := errors.New("stop")

	err := j.Range(func(i uint64, item T) error {
		if i == index {
			found = item
			return errStop
		}

		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return zero, err
	}

	return found, nil
}

// Range implements Journal. Items appended while ranging are not visited.
func (j *fileJournal[T]) Range(fn func(index uint64, item T) error) error {
	length := j.Len()

	return j.scan(func(i uint64, item T) error {
		if i >= length {
			return io.EOF
		}

		return fn(i, item)
	})
}

// scan decodes items from the start of the file until EOF or fn fails.
func (j *fileJournal[T]) scan(fn func(index uint64, item T) error) error {
	// #nosec G304 - journal lives in the session directory
	file, err := os.Open(j.path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("failed to close journal", "path", j.path, "error", err)
		}
	}()

	decoder := gob.NewDecoder(file)

	for i := uint64(0); ; i++ {
		var item T

		if err := decoder.Decode(&item); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("failed to decode item at index %d: %w", i, err)
		}

		if err := fn(i, item); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}
	}
}

// Close implements Journal.
func (j *fileJournal[T]) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}

	err := j.file.Close()
	j.file = nil
	j.encoder = nil

	if err != nil {
		slog.Error("failed to close journal", "path", j.path, "error", err)
		return err
	}

	return nil
}
