// Package storage holds attachment bytes in an object store. The metadata
// row in Postgres is the source of truth; bytes land here only after the
// quota check commits.
package storage

import (
	"context"
	"io"
)

// ObjectStore is the attachment byte store.
type ObjectStore interface {
	// PutObject uploads content under key.
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error

	// GetObject retrieves the content stored under key. The caller closes
	// the reader.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	// DeleteObject removes the content under key. Deleting a missing key is
	// not an error.
	DeleteObject(ctx context.Context, key string) error

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error
}

// Config for the S3 backend. Endpoint and path style support MinIO in local
// development.
type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}
