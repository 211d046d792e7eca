// Package storage defines the blob store the page archive writes through.
// Implementations live in the local and gcs subpackages.
package storage

import (
	"context"
	"io"
)

// BlobStore persists raw objects and returns a URI for the written object.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// NoOpBlobStore discards every object.
type NoOpBlobStore struct{}

// PutObject returns an empty URI without reading r.
func (NoOpBlobStore) PutObject(_ context.Context, _ string, _ string, _ io.Reader) (string, error) {
	return "", nil
}
