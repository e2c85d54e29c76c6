package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object. Metadata keys are lower case.
type BlobInfo struct {
	Size         int64
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
}

// BlobWriter uploads data to object storage with user metadata.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string, meta map[string]string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64, meta map[string]string) error
}

// BlobReader retrieves data from object storage. Both methods return
// ErrNotFound for a missing object.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Stat(ctx context.Context, path string) (BlobInfo, error)
}

// Archiver exports settled markets and their bets to cold storage.
type Archiver interface {
	ArchiveSettledMarkets(ctx context.Context, before time.Time) (int64, error)
}
