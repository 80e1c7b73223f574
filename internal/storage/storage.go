package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("storage object not found")

type Store interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (int64, error)
	// PutStream replaces the object at key only after reader is fully consumed.
	// A failing reader leaves any previous object untouched. A non-negative
	// size must match the number of bytes read.
	PutStream(ctx context.Context, key string, contentType string, reader io.Reader, size int64) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// OpenRange opens [start, end] (inclusive). If end is negative, it reads to EOF.
	OpenRange(ctx context.Context, key string, start int64, end int64) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	// URL returns a locator that reads the object without loading it here.
	URL(ctx context.Context, key string) (string, error)
	// Ping reports whether the backend is reachable and writable.
	Ping(ctx context.Context) error
}

// TypeName is the storage_type recorded for entries written through s.
func TypeName(s Store) string {
	switch s.(type) {
	case *S3Store:
		return "S3"
	case *MemoryStore:
		return "MEMORY"
	default:
		return "LOCAL"
	}
}

type readerWithCloser struct {
	io.Reader
	io.Closer
}
