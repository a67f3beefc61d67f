// Package storage defines the interface for object storage operations.
// Swap implementations by changing the concrete type injected at startup —
// the MinIO implementation works with any S3-compatible provider (MinIO,
// Cloudflare R2, AWS S3).
//
// The store is deliberately ignorant of file records and users: it moves
// opaque bytes by key. Consistency with the database is the file lifecycle
// coordinator's job, not this layer's.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Storage is the interface for uploading and retrieving objects.
type Storage interface {
	// Upload streams data to the store under the given key, overwriting
	// any existing object.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Get returns the object's bytes and stored content type, or
	// ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) ([]byte, string, error)
	// Delete removes an object identified by key. Deleting an absent key
	// is not an error.
	Delete(ctx context.Context, key string) error
	// PublicURL constructs the browser-accessible URL for a given key.
	PublicURL(key string) string
}
