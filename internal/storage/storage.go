package storage

import (
	"context"
	"io"
)

// ObjectStore is the narrow blob-store interface the pipeline reads and
// writes through. The backend is opaque to callers.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}
