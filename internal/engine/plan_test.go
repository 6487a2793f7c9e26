package engine

import (
	"context"
	"testing"

	"github.com/13rac1/bucketsync/internal/fingerprint"
	"github.com/13rac1/bucketsync/internal/store"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanUp(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"new": "n", "same": "s", "grown": "gg"})
	mem := store.NewMemory(testBucket)
	mem.Put(testBucket, "backup/same", []byte("s"))
	mem.Put(testBucket, "backup/grown", []byte("g"))
	mem.Put(testBucket, "backup/gone", []byte("x"))

	cfg := testConfig()
	cfg.Sync.DeleteExtraneous = true
	items, err := newEngine(t, cfg, mem, fs).Plan(context.Background(), types.Up)
	require.NoError(t, err)

	want := []PlanItem{
		{Key: "gone", Action: ActionDelete, Size: 1},
		{Key: "grown", Action: ActionUpload, Reason: fingerprint.SizeDiffers, Size: 2},
		{Key: "new", Action: ActionUpload, Reason: fingerprint.MissingRemote, Size: 1},
		{Key: "same", Action: ActionSkip, Size: 1},
	}
	assert.Equal(t, want, items)
	assert.Equal(t, []string{"backup/gone", "backup/grown", "backup/same"}, mem.Keys(testBucket), "plan must not modify the store")
}

func TestPlanUpMissingBucket(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"a": "a"})
	mem := store.NewMemory()

	items, err := newEngine(t, testConfig(), mem, fs).Plan(context.Background(), types.Up)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ActionUpload, items[0].Action)

	exists, err := mem.BucketExists(context.Background(), testBucket)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPlanDown(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"same": "s", "extra": "e"})
	mem := store.NewMemory(testBucket)
	mem.Put(testBucket, "backup/same", []byte("s"))
	mem.Put(testBucket, "backup/dir/missing", []byte("mm"))

	cfg := testConfig()
	cfg.Sync.DeleteExtraneous = true
	items, err := newEngine(t, cfg, mem, fs).Plan(context.Background(), types.Down)
	require.NoError(t, err)

	want := []PlanItem{
		{Key: "dir/missing", Action: ActionDownload, Reason: fingerprint.MissingLocal, Size: 2},
		{Key: "extra", Action: ActionDelete},
		{Key: "same", Action: ActionSkip, Size: 1},
	}
	assert.Equal(t, want, items)
	assert.Equal(t, map[string]string{"same": "s", "extra": "e"}, localFiles(t, fs))
}
