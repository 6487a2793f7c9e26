package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/13rac1/bucketsync/internal/store"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCall(t *testing.T, calls <-chan int) int {
	t.Helper()
	select {
	case n := <-calls:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run")
		return 0
	}
}

func TestWatchContinuesAfterError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan int, 10)
	n := 0
	run := func(context.Context) error {
		n++
		calls <- n
		if n == 1 {
			return errors.New("store unreachable")
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- Watch(ctx, clock, 10*time.Second, run) }()

	assert.Equal(t, 1, waitCall(t, calls))
	clock.BlockUntil(1)
	clock.Advance(10 * time.Second)
	assert.Equal(t, 2, waitCall(t, calls))

	clock.BlockUntil(1)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestWatchEnforcesMinimumInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan int, 10)
	n := 0
	run := func(context.Context) error {
		n++
		calls <- n
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- Watch(ctx, clock, 0, run) }()

	waitCall(t, calls)
	clock.BlockUntil(1)
	clock.Advance(MinWatchInterval - time.Millisecond)

	select {
	case <-calls:
		t.Fatal("run called before the minimum interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	assert.Equal(t, 2, waitCall(t, calls))

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestWatchRecoversFromStoreOutage(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"a": "a"})
	mem := store.NewMemory(testBucket)
	mem.SetErr(errors.New("connection refused"))
	e := newEngine(t, testConfig(), mem, fs)

	results := make(chan error, 10)
	run := func(ctx context.Context) error {
		_, err := e.Sync(ctx, types.Up)
		results <- err
		return err
	}

	done := make(chan error, 1)
	go func() { done <- Watch(ctx, clock, time.Minute, run) }()

	require.Error(t, <-results)
	mem.SetErr(nil)
	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	require.NoError(t, <-results)
	assert.Equal(t, []string{"backup/a"}, mem.Keys(testBucket))

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
