// Package storage defines the blob abstraction used for datasets, model
// artifacts and explainability reports.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports a missing object.
var ErrNotFound = errors.New("object not found")

// Writer persists an object and returns its URI.
type Writer interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Reader opens an object for streaming reads. Callers close the reader.
type Reader interface {
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// BlobStore reads and writes objects.
type BlobStore interface {
	Writer
	Reader
}

// ReadAll fetches an object fully into memory.
func ReadAll(ctx context.Context, r Reader, path string) ([]byte, error) {
	rc, err := r.GetObject(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck // read-only handle
	return io.ReadAll(rc)
}
