// Package storage holds uploaded media such as publication thumbnails.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"crowpro-api/config"
)

var ErrInvalidKey = errors.New("invalid object key")

// BlobStore saves objects under a key and resolves the URL clients fetch them from.
type BlobStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		return NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	case config.StorageMinio:
		m := cfg.Minio
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return NewMinioStore(connectCtx, m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.UseSSL, m.PresignExpiry)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
