// Package engine sequences a sync run: build the remote index, transfer what
// differs, optionally prune extraneous items, and report a summary.
package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"

	"github.com/13rac1/bucketsync/internal/discover"
	"github.com/13rac1/bucketsync/internal/fingerprint"
	"github.com/13rac1/bucketsync/internal/reconcile"
	"github.com/13rac1/bucketsync/internal/store"
	"github.com/13rac1/bucketsync/internal/transfer"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// downloadPerm is the mode of downloaded files.
const downloadPerm = 0o644

// Synchronizer runs one sync in the given direction.
type Synchronizer interface {
	Sync(ctx context.Context, dir types.Direction) (types.Summary, error)
}

// Engine implements Synchronizer against a Store and a local filesystem.
type Engine struct {
	cfg     *types.Config
	store   store.Store
	fs      afero.Fs
	matcher *discover.Matcher
	policy  *fingerprint.Policy
	clock   clockwork.Clock
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to time runs.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine. cfg must already be loaded and normalized.
func New(cfg *types.Config, st store.Store, fs afero.Fs, opts ...Option) (*Engine, error) {
	matcher, err := discover.NewMatcher(cfg.Local.Include, cfg.Local.Exclude)
	if err != nil {
		return nil, fmt.Errorf("compiling globs: %w", err)
	}
	policy, err := fingerprint.New(cfg.Sync.Fingerprint, fs)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		store:   st,
		fs:      fs,
		matcher: matcher,
		policy:  policy,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Sync dispatches to Up or Down.
func (e *Engine) Sync(ctx context.Context, dir types.Direction) (types.Summary, error) {
	switch dir {
	case types.Up:
		return e.Up(ctx)
	case types.Down:
		return e.Down(ctx)
	default:
		return types.Summary{Direction: dir}, fmt.Errorf("unknown direction %q", dir)
	}
}

func (e *Engine) enumerator() *discover.LocalEnumerator {
	return discover.NewLocalEnumerator(e.fs, e.cfg.Local.Dir, e.matcher)
}

// Up pushes local changes to the store. With mirror enabled, remote objects
// with no local counterpart are deleted after the uploads finish.
//
// Task failures do not abort the run: the summary counts them and the
// returned error is a *transfer.PartialError. Listing, enumeration and
// bucket errors abort the run.
func (e *Engine) Up(ctx context.Context) (types.Summary, error) {
	start := e.clock.Now()
	summary := types.Summary{Direction: types.Up}
	bucket, prefix := e.cfg.S3.Bucket, e.cfg.S3.Prefix

	if e.cfg.S3.EnsureBucket() {
		if err := e.ensureBucket(ctx, bucket); err != nil {
			return summary, err
		}
	}

	index, err := discover.BuildRemoteIndex(ctx, e.store, bucket, prefix)
	if err != nil {
		return summary, err
	}

	report, err := transfer.Run(ctx, e.uploadTasks(index), e.cfg.Sync.Concurrency)
	applyReport(&summary, report)
	if err != nil {
		summary.Duration = e.clock.Since(start)
		return summary, fmt.Errorf("uploading: %w", err)
	}

	if e.cfg.Sync.DeleteExtraneous {
		// Rebuilt so nothing uploaded above is seen as extraneous.
		index, err = discover.BuildRemoteIndex(ctx, e.store, bucket, prefix)
		if err != nil {
			summary.Duration = e.clock.Since(start)
			return summary, err
		}
		local, err := e.enumerator().Keys()
		if err != nil {
			summary.Duration = e.clock.Since(start)
			return summary, err
		}

		extra := reconcile.Extraneous(index.Keys(), mapKeys(local))
		objectKeys := make([]string, 0, len(extra))
		for _, k := range extra {
			objectKeys = append(objectKeys, index[k].Key)
		}

		deleted, err := reconcile.PruneRemote(ctx, e.store, bucket, objectKeys)
		summary.Deleted = deleted
		if err != nil {
			summary.Duration = e.clock.Since(start)
			return summary, err
		}
	}

	summary.Duration = e.clock.Since(start)
	return summary, report.Err()
}

func (e *Engine) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := e.store.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	slog.Info("creating bucket", "bucket", bucket)
	if err := e.store.CreateBucket(ctx, bucket); err != nil {
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	return nil
}

func (e *Engine) uploadTasks(index discover.RemoteIndex) iter.Seq2[transfer.Task, error] {
	return func(yield func(transfer.Task, error) bool) {
		for f, err := range e.enumerator().Files() {
			if err != nil {
				yield(transfer.Task{}, err)
				return
			}
			if !yield(e.uploadTask(f, index), nil) {
				return
			}
		}
	}
}

func (e *Engine) uploadTask(f discover.LocalFile, index discover.RemoteIndex) transfer.Task {
	return transfer.Task{
		Key:  f.Key,
		Size: f.Size,
		Run: func(ctx context.Context) (bool, error) {
			remote, exists := index[f.Key]
			reason, err := e.policy.Decide(f.Path, remote, exists)
			if err != nil {
				return false, err
			}
			if reason == fingerprint.InSync {
				slog.Debug("sync", "op", "skip", "key", f.Key)
				return false, nil
			}

			file, err := e.fs.Open(f.Path)
			if err != nil {
				return false, fmt.Errorf("opening file: %w", err)
			}
			defer func() { _ = file.Close() }()

			objectKey := discover.ObjectKey(e.cfg.S3.Prefix, f.Key)
			if err := e.store.PutObject(ctx, e.cfg.S3.Bucket, objectKey, file, f.Size); err != nil {
				return false, fmt.Errorf("uploading %s: %w", objectKey, err)
			}
			slog.Info("sync", "op", "upload", "key", f.Key, "reason", string(reason), "size", humanize.IBytes(uint64(f.Size)))
			return true, nil
		},
	}
}

// Down pulls remote changes into the local directory. With mirror enabled,
// selected local files with no remote counterpart are deleted after the
// downloads finish.
func (e *Engine) Down(ctx context.Context) (types.Summary, error) {
	start := e.clock.Now()
	summary := types.Summary{Direction: types.Down}
	bucket, prefix := e.cfg.S3.Bucket, e.cfg.S3.Prefix

	if err := e.fs.MkdirAll(e.cfg.Local.Dir, 0755); err != nil {
		return summary, fmt.Errorf("creating local directory %s: %w", e.cfg.Local.Dir, err)
	}

	index, err := discover.BuildRemoteIndex(ctx, e.store, bucket, prefix)
	if err != nil {
		return summary, err
	}

	report, err := transfer.Run(ctx, e.downloadTasks(index), e.cfg.Sync.Concurrency)
	applyReport(&summary, report)
	if err != nil {
		summary.Duration = e.clock.Since(start)
		return summary, fmt.Errorf("downloading: %w", err)
	}

	if e.cfg.Sync.DeleteExtraneous {
		local, err := e.enumerator().Keys()
		if err != nil {
			summary.Duration = e.clock.Since(start)
			return summary, err
		}

		extra := reconcile.Extraneous(mapKeys(local), index.Keys())
		paths := make([]string, 0, len(extra))
		for _, k := range extra {
			paths = append(paths, local[k])
		}
		summary.Deleted = reconcile.PruneLocal(e.fs, paths)
	}

	summary.Duration = e.clock.Since(start)
	return summary, report.Err()
}

func (e *Engine) downloadTasks(index discover.RemoteIndex) iter.Seq2[transfer.Task, error] {
	return func(yield func(transfer.Task, error) bool) {
		for _, key := range index.Keys() {
			if !yield(e.downloadTask(key, index[key]), nil) {
				return
			}
		}
	}
}

func (e *Engine) downloadTask(key string, remote discover.RemoteObject) transfer.Task {
	return transfer.Task{
		Key:  key,
		Size: remote.Size,
		Run: func(ctx context.Context) (bool, error) {
			localPath, err := discover.LocalPath(e.cfg.Local.Dir, key)
			if err != nil {
				return false, err
			}

			reason, err := e.policy.Decide(localPath, remote, true)
			if err != nil {
				return false, err
			}
			if reason == fingerprint.InSync {
				slog.Debug("sync", "op", "skip", "key", key)
				return false, nil
			}

			if err := e.download(ctx, remote.Key, localPath); err != nil {
				return false, err
			}
			slog.Info("sync", "op", "download", "key", key, "reason", string(reason), "size", humanize.IBytes(uint64(remote.Size)))
			return true, nil
		},
	}
}

// download writes the object to a temporary sibling of localPath and renames
// it into place, so a failed transfer never leaves a truncated file behind.
func (e *Engine) download(ctx context.Context, objectKey, localPath string) (err error) {
	dir := filepath.Dir(localPath)
	if err := e.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(e.fs, dir, "."+filepath.Base(localPath)+".*.part")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = e.fs.Remove(tmpName)
		}
	}()

	if err := e.store.GetObject(ctx, e.cfg.S3.Bucket, objectKey, tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("downloading %s: %w", objectKey, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	// TempFile creates owner-only files.
	if err := e.fs.Chmod(tmpName, downloadPerm); err != nil {
		return fmt.Errorf("setting mode on %s: %w", tmpName, err)
	}
	if err := e.fs.Rename(tmpName, localPath); err != nil {
		return fmt.Errorf("renaming %s: %w", tmpName, err)
	}
	return nil
}

func applyReport(s *types.Summary, r transfer.Report) {
	s.Transferred = r.Transferred
	s.Skipped = r.Skipped
	s.Failed = len(r.Failures)
	s.Bytes = r.Bytes
	for _, f := range r.Failures {
		slog.Error("sync", "op", "transfer", "key", f.Key, "error", f.Err)
	}
}

func mapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
