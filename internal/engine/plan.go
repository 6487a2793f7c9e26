package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/13rac1/bucketsync/internal/discover"
	"github.com/13rac1/bucketsync/internal/fingerprint"
	"github.com/13rac1/bucketsync/internal/reconcile"
	"github.com/13rac1/bucketsync/internal/types"
)

// Action is what a sync run would do with one item.
type Action string

const (
	ActionUpload   Action = "upload"
	ActionDownload Action = "download"
	ActionSkip     Action = "skip"
	ActionDelete   Action = "delete"
)

// PlanItem is one row of a dry run.
type PlanItem struct {
	Key    string
	Action Action
	Reason fingerprint.Reason
	Size   int64
}

// Plan makes the same decisions as Sync without transferring or deleting
// anything. Items are sorted by key.
func (e *Engine) Plan(ctx context.Context, dir types.Direction) ([]PlanItem, error) {
	var (
		items []PlanItem
		err   error
	)
	switch dir {
	case types.Up:
		items, err = e.planUp(ctx)
	case types.Down:
		items, err = e.planDown(ctx)
	default:
		return nil, fmt.Errorf("unknown direction %q", dir)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

func (e *Engine) planUp(ctx context.Context) ([]PlanItem, error) {
	bucket := e.cfg.S3.Bucket

	index := discover.RemoteIndex{}
	exists, err := e.store.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	if exists {
		index, err = discover.BuildRemoteIndex(ctx, e.store, bucket, e.cfg.S3.Prefix)
		if err != nil {
			return nil, err
		}
	}

	var items []PlanItem
	var localKeys []string
	for f, err := range e.enumerator().Files() {
		if err != nil {
			return nil, err
		}
		localKeys = append(localKeys, f.Key)

		remote, ok := index[f.Key]
		reason, err := e.policy.Decide(f.Path, remote, ok)
		if err != nil {
			return nil, err
		}
		items = append(items, PlanItem{Key: f.Key, Action: action(reason, ActionUpload), Reason: reason, Size: f.Size})
	}

	if e.cfg.Sync.DeleteExtraneous {
		for _, k := range reconcile.Extraneous(index.Keys(), localKeys) {
			items = append(items, PlanItem{Key: k, Action: ActionDelete, Size: index[k].Size})
		}
	}
	return items, nil
}

func (e *Engine) planDown(ctx context.Context) ([]PlanItem, error) {
	index, err := discover.BuildRemoteIndex(ctx, e.store, e.cfg.S3.Bucket, e.cfg.S3.Prefix)
	if err != nil {
		return nil, err
	}

	var items []PlanItem
	for _, k := range index.Keys() {
		remote := index[k]
		localPath, err := discover.LocalPath(e.cfg.Local.Dir, k)
		if err != nil {
			return nil, err
		}
		reason, err := e.policy.Decide(localPath, remote, true)
		if err != nil {
			return nil, err
		}
		items = append(items, PlanItem{Key: k, Action: action(reason, ActionDownload), Reason: reason, Size: remote.Size})
	}

	if e.cfg.Sync.DeleteExtraneous {
		local, err := e.enumerator().Keys()
		if err != nil {
			return nil, err
		}
		for _, k := range reconcile.Extraneous(mapKeys(local), index.Keys()) {
			items = append(items, PlanItem{Key: k, Action: ActionDelete})
		}
	}
	return items, nil
}

func action(reason fingerprint.Reason, transfer Action) Action {
	if reason == fingerprint.InSync {
		return ActionSkip
	}
	return transfer
}
