package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"split-harness-go/config"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUnknownBackend = func(name string) error {
		return fmt.Errorf("unknown storage backend %q, expected local, minio or s3", name)
	}
)

// Store is an object store holding the files that file splits read.
type Store interface {
	// Get opens the object at key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put writes size bytes from r to key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Size returns the object length in bytes.
	Size(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	Name() string
}

// ReadAll fetches the whole object at key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %s: %w", key, s.Name(), err)
	}
	return data, nil
}

// FromConfig builds the store named by the storage section of cfg. Remote
// backends take their credentials from cfg.Secrets.
func FromConfig(cfg *config.Config) (Store, error) {
	s := cfg.Storage
	bucket := s.Bucket
	if bucket == "" {
		bucket = cfg.Secrets.BucketName
	}
	switch s.Backend {
	case "", "local":
		return NewLocalStore(s.Root)
	case "minio":
		return NewMinioStore(cfg.Secrets.EndpointURL, cfg.Secrets.AccessKey, cfg.Secrets.SecretKey, bucket, s.UseSSL)
	case "s3":
		return NewS3Store(S3Options{
			Region:    s.Region,
			Endpoint:  cfg.Secrets.EndpointURL,
			AccessKey: cfg.Secrets.AccessKey,
			SecretKey: cfg.Secrets.SecretKey,
			Bucket:    bucket,
		})
	}
	return nil, ErrUnknownBackend(s.Backend)
}
