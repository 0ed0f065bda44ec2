package ports

import (
	"context"
	"io"
)

// BlobInfo describes a stored blob.
type BlobInfo struct {
	Key         string
	Size        int64
	ContentType string
	URL         string
}

// Port: storage for attachment bytes owned by batches.
// Keys are created once; Delete releases the bytes and reports whether they existed.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (BlobInfo, error)
	Get(ctx context.Context, key string) (BlobInfo, io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	// Driver names the backend, used as the scheme prefix of attachment URLs.
	Driver() string
}
