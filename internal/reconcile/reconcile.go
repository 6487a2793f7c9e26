// Package reconcile computes the extraneous set of a mirror run, the items
// present on the side being pruned but absent from the controlling side,
// and deletes them.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/13rac1/bucketsync/internal/store"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/afero"
)

// Extraneous returns observed minus wanted, sorted.
func Extraneous(observed, wanted []string) []string {
	diff := mapset.NewThreadUnsafeSet(observed...).Difference(mapset.NewThreadUnsafeSet(wanted...))
	out := diff.ToSlice()
	sort.Strings(out)
	return out
}

// PruneRemote deletes keys from bucket using multi-object delete requests of
// at most store.MaxDeleteBatch keys. It returns how many keys were deleted
// before the first failing request.
func PruneRemote(ctx context.Context, deleter store.Deleter, bucket string, keys []string) (int, error) {
	deleted := 0
	for start := 0; start < len(keys); start += store.MaxDeleteBatch {
		end := min(start+store.MaxDeleteBatch, len(keys))
		batch := keys[start:end]

		if err := deleter.DeleteObjects(ctx, bucket, batch); err != nil {
			return deleted, fmt.Errorf("deleting %d objects from %s: %w", len(batch), bucket, err)
		}
		deleted += len(batch)

		for _, k := range batch {
			slog.Info("sync", "op", "delete-remote", "key", k)
		}
	}
	return deleted, nil
}

// PruneLocal removes each path individually. A failure to remove one file is
// logged and does not stop the others; it is not counted as deleted.
func PruneLocal(fsys afero.Fs, paths []string) int {
	deleted := 0
	for _, p := range paths {
		err := fsys.Remove(p)
		switch {
		case err == nil:
			deleted++
			slog.Info("sync", "op", "delete-local", "path", p)
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("sync", "op", "delete-local", "path", p, "message", "file was already deleted")
		default:
			slog.Warn("sync", "op", "delete-local", "path", p, "error", err)
		}
	}
	return deleted
}
