package storage

import "context"

// ObjectStore persists uploaded objects and returns their public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

var (
	_ ObjectStore = (*FileStore)(nil)
	_ ObjectStore = (*S3Store)(nil)
)
