// Package store defines the object store capabilities the sync engine
// depends on and provides implementations backed by aws-sdk-go-v2 and
// minio-go. The engine only ever sees these interfaces.
package store

import (
	"context"
	"io"
	"iter"
	"strings"
)

// MaxDeleteBatch is the largest number of keys a single multi-object delete
// request may carry.
const MaxDeleteBatch = 1000

// Object describes one listed object.
type Object struct {
	Key  string
	Size int64
	// ETag is the store's content identity token as returned, possibly quoted.
	ETag string
}

// IsDirMarker reports whether the object is a zero-byte directory placeholder.
func (o Object) IsDirMarker() bool {
	return strings.HasSuffix(o.Key, "/")
}

// Lister lists objects recursively under a prefix.
type Lister interface {
	ListObjects(ctx context.Context, bucket, prefix string) iter.Seq2[Object, error]
}

// Getter downloads a single object into w.
type Getter interface {
	GetObject(ctx context.Context, bucket, key string, w io.WriterAt) error
}

// Putter uploads a single object from r.
type Putter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error
}

// BucketManager checks for and creates buckets.
type BucketManager interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket string) error
}

// Deleter removes a batch of objects in a single request. Callers keep
// batches at or below MaxDeleteBatch.
type Deleter interface {
	DeleteObjects(ctx context.Context, bucket string, keys []string) error
}

// Store is the full capability set used by a sync run.
type Store interface {
	Lister
	Getter
	Putter
	BucketManager
	Deleter
}
