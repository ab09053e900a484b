package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go"
)

var (
	_ = (Store)(&MinioStore{})
)

// MinioStore reads and writes objects in one bucket of an S3 compatible
// endpoint through the minio client.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("minio store needs an endpoint and a bucket")
	}
	client, err := minio.New(endpoint, accessKey, secretKey, useSSL)
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) Name() string { return "minio" }

func (m *MinioStore) wrap(err error, key string) error {
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s/%s: %w", m.bucket, key, ErrObjectNotFound)
	}
	return err
}

func (m *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	// GetObject is lazy, stat first so a missing key fails here
	if _, err := m.Size(ctx, key); err != nil {
		return nil, err
	}
	obj, err := m.client.GetObjectWithContext(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.wrap(err, key)
	}
	return obj, nil
}

func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := m.client.PutObjectWithContext(ctx, m.bucket, key, r, size, minio.PutObjectOptions{})
	return m.wrap(err, key)
}

func (m *MinioStore) Size(_ context.Context, key string) (int64, error) {
	info, err := m.client.StatObject(m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, m.wrap(err, key)
	}
	return info.Size, nil
}

func (m *MinioStore) Delete(_ context.Context, key string) error {
	return m.wrap(m.client.RemoveObject(m.bucket, key), key)
}
