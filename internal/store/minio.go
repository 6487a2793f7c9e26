package store

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/minio/minio-go/v7"
)

// minioAPI is the subset of *minio.Client used by Minio.
type minioAPI interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	RemoveObjects(ctx context.Context, bucket string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
}

// objectOpener opens an object for streaming reads.
type objectOpener func(ctx context.Context, bucket, key string) (io.ReadCloser, error)

// Minio implements Store on top of minio-go.
type Minio struct {
	api  minioAPI
	open objectOpener
}

// NewMinio wraps a minio client.
func NewMinio(client *minio.Client) *Minio {
	return &Minio{
		api: client,
		open: func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
			return client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		},
	}
}

// ListObjects lists every object under prefix recursively.
func (m *Minio) ListObjects(ctx context.Context, bucket, prefix string) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		// The listing goroutine stops when ctx is cancelled.
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for info := range m.api.ListObjects(ctx, bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if info.Err != nil {
				yield(Object{}, fmt.Errorf("list objects: %w", info.Err))
				return
			}
			if !yield(Object{Key: info.Key, Size: info.Size, ETag: info.ETag}, nil) {
				return
			}
		}
	}
}

// GetObject streams key into w.
func (m *Minio) GetObject(ctx context.Context, bucket, key string, w io.WriterAt) error {
	rc, err := m.open(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("minio get object: %w", err)
	}
	defer func() { _ = rc.Close() }()

	if _, err := io.Copy(io.NewOffsetWriter(w, 0), rc); err != nil {
		return fmt.Errorf("minio get object: %w", err)
	}
	return nil
}

// PutObject uploads r to key.
func (m *Minio) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	_, err := m.api.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("minio put object: %w", err)
	}
	return nil
}

// BucketExists reports whether bucket exists.
func (m *Minio) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := m.api.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	return ok, nil
}

// CreateBucket creates bucket.
func (m *Minio) CreateBucket(ctx context.Context, bucket string) error {
	if err := m.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	return nil
}

// DeleteObjects removes keys with a single RemoveObjects call.
func (m *Minio) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	var failed int
	var first error
	for rerr := range m.api.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		failed++
		if first == nil {
			first = fmt.Errorf("%s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	if first != nil {
		return fmt.Errorf("remove objects: %d of %d keys failed, first %w", failed, len(keys), first)
	}
	return nil
}
