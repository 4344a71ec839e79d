package storage

import (
	"context"
	"io"
)

// ObjectStorage stores uploaded documents and transformation artifacts.
// Keys are slash-separated paths scoped per user, e.g. "42/brief.pdf".
type ObjectStorage interface {
	// Upload stores an object under key, replacing any existing object.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens the object stored under key for reading.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error
}
