package storage

import "context"

// Upload carries the bytes of a media file handed to the core by the
// transport layer.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Blob identifies a stored object: an opaque key for deletion and a public
// URL for embedding in documents.
type Blob struct {
	Key string
	URL string
}

// BlobStore is the external object store the core writes media to. Store
// must complete before the owning document write; Delete is the best-effort
// compensating action when that write fails.
type BlobStore interface {
	Store(ctx context.Context, upload Upload) (Blob, error)
	Delete(ctx context.Context, key string) error
}
