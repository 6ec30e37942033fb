// ABOUTME: File-backed DocumentStore using write-to-temp, fsync and rename
// ABOUTME: Readers never observe a torn document because rename is atomic within a directory

package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

// FileStore keeps one file per document under a private directory.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: slog.Default().With("component", "store", "backend", BackendFile),
	}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load reads the named document. Returns ErrNotFound if it was never saved.
func (s *FileStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading document %s: %w", name, err)
	}
	return data, nil
}

// Save replaces the named document atomically.
func (s *FileStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	chmodErr := tmp.Chmod(fileMode)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	for _, err := range []error{writeErr, chmodErr, syncErr, closeErr} {
		if err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("writing document %s: %w", name, err)
		}
	}

	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replacing document %s: %w", name, err)
	}

	s.logger.Debug("saved document", "name", name, "bytes", len(data))
	return nil
}

// Lock takes the cross-process lock for the named document.
func (s *FileStore) Lock(ctx context.Context, name string) (func(), error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return lockFile(ctx, filepath.Join(s.dir, "."+name+".lock"))
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

// Ensure FileStore implements DocumentStore.
var _ DocumentStore = (*FileStore)(nil)
