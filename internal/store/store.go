// ABOUTME: DocumentStore interface for whole-document persistence
// ABOUTME: Each component owns one named document and replaces it atomically on save

package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidName is returned for document names outside [a-z0-9._-]
var ErrInvalidName = errors.New("invalid document name")

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// DocumentStore persists opaque documents by name. Save must be atomic:
// a concurrent Load observes either the previous document or the new one,
// never a partial write.
//
// Lock takes an exclusive lock on one document that holds across processes
// sharing the store. Callers hold it over Load, modify, Save so that no
// writer overwrites a change it never read.
type DocumentStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	Lock(ctx context.Context, name string) (unlock func(), err error)
	Close() error
}

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// ValidateName checks that name is usable as a document name on every backend.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Open creates the DocumentStore for the named backend.
// dir is the data directory used by the file backend; sqlitePath is the
// database file used by the sqlite backend.
func Open(backend, dir, sqlitePath string) (DocumentStore, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
