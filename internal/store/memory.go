package store

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"
	"sync"
)

// ErrNoSuchKey is returned by Memory for missing objects.
var ErrNoSuchKey = errors.New("no such key")

// ErrNoSuchBucket is returned by Memory for missing buckets.
var ErrNoSuchBucket = errors.New("no such bucket")

// Memory is an in-memory Store. ETags are the quoted MD5 of the content,
// matching what S3 returns for single-part uploads. It is safe for
// concurrent use and intended for tests and local experiments.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	// Err, when set, is returned by every operation.
	Err error

	deleteCalls int
}

// NewMemory returns a Memory holding the given empty buckets.
func NewMemory(buckets ...string) *Memory {
	m := &Memory{buckets: make(map[string]map[string][]byte)}
	for _, b := range buckets {
		m.buckets[b] = make(map[string][]byte)
	}
	return m
}

// SetErr sets or clears the injected failure.
func (m *Memory) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Put stores data directly, bypassing Err.
func (m *Memory) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[bucket] = b
	}
	b[key] = append([]byte(nil), data...)
}

// Get returns a copy of an object's content.
func (m *Memory) Get(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.buckets[bucket][key]
	return append([]byte(nil), data...), ok
}

// Keys returns the sorted keys in bucket.
func (m *Memory) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DeleteCalls returns how many DeleteObjects requests were served.
func (m *Memory) DeleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteCalls
}

func (m *Memory) bucket(name string) (map[string][]byte, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	b, ok := m.buckets[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoSuchBucket)
	}
	return b, nil
}

// ListObjects lists a snapshot of the objects under prefix in key order.
func (m *Memory) ListObjects(_ context.Context, bucket, prefix string) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		m.mu.Lock()
		b, err := m.bucket(bucket)
		var objs []Object
		if err == nil {
			for k, data := range b {
				if strings.HasPrefix(k, prefix) {
					objs = append(objs, Object{Key: k, Size: int64(len(data)), ETag: etag(data)})
				}
			}
		}
		m.mu.Unlock()

		if err != nil {
			yield(Object{}, err)
			return
		}
		sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
		for _, o := range objs {
			if !yield(o, nil) {
				return
			}
		}
	}
}

// GetObject writes the object's content to w.
func (m *Memory) GetObject(_ context.Context, bucket, key string, w io.WriterAt) error {
	m.mu.Lock()
	b, err := m.bucket(bucket)
	var data []byte
	ok := false
	if err == nil {
		data, ok = b[key]
	}
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNoSuchKey)
	}
	_, err = w.WriteAt(data, 0)
	return err
}

// PutObject stores the content read from r.
func (m *Memory) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	b[key] = buf.Bytes()
	return nil
}

// BucketExists reports whether bucket exists.
func (m *Memory) BucketExists(_ context.Context, bucket string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	_, ok := m.buckets[bucket]
	return ok, nil
}

// CreateBucket creates bucket if it does not exist.
func (m *Memory) CreateBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

// DeleteObjects removes keys. Missing keys are ignored, as in S3.
func (m *Memory) DeleteObjects(_ context.Context, bucket string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	if len(keys) > MaxDeleteBatch {
		return fmt.Errorf("delete batch of %d keys exceeds limit of %d", len(keys), MaxDeleteBatch)
	}
	m.deleteCalls++
	for _, k := range keys {
		delete(b, k)
	}
	return nil
}

func etag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
