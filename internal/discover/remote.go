package discover

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/13rac1/bucketsync/internal/store"
)

// RemoteObject is the descriptor of one remote object in the index.
type RemoteObject struct {
	Key  string // Full object key, prefix included
	ETag string // Content fingerprint with quotes stripped
	Size int64
}

// RemoteIndex maps relative keys to remote descriptors.
type RemoteIndex map[string]RemoteObject

// Keys returns the relative keys in sorted order.
func (idx RemoteIndex) Keys() []string {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildRemoteIndex lists every object under bucket/prefix and indexes it by
// key relative to prefix. Directory markers are skipped. A listing failure
// returns no index.
//
// For objects uploaded in multiple parts the ETag is not an MD5 of the
// content, so the etag fingerprint mode always sees such objects as changed.
func BuildRemoteIndex(ctx context.Context, lister store.Lister, bucket, prefix string) (RemoteIndex, error) {
	idx := make(RemoteIndex)

	for obj, err := range lister.ListObjects(ctx, bucket, prefix) {
		if err != nil {
			return nil, fmt.Errorf("listing objects under %s/%s: %w", bucket, prefix, err)
		}
		if obj.IsDirMarker() {
			continue
		}

		rel := RelativeKey(prefix, obj.Key)
		idx[rel] = RemoteObject{
			Key:  obj.Key,
			ETag: StripETag(obj.ETag),
			Size: obj.Size,
		}
	}

	return idx, nil
}

// RelativeKey strips prefix from an object key. Keys outside prefix are
// returned whole.
func RelativeKey(prefix, key string) string {
	if prefix != "" && strings.HasPrefix(key, prefix) {
		return key[len(prefix):]
	}
	return key
}

// ObjectKey builds the full object key for a relative key.
func ObjectKey(prefix, key string) string {
	return prefix + key
}

// StripETag removes the quoting S3 puts around ETag values.
func StripETag(etag string) string {
	return strings.ReplaceAll(etag, `"`, "")
}
