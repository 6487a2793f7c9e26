package mcmirror

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/13rac1/bucketsync/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records commands and fails the first failMirror mirror calls.
type fakeRunner struct {
	mu         sync.Mutex
	calls      [][]string
	failMirror int
	mbOutput   string
	mbErr      error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))

	switch args[0] {
	case "mb":
		return []byte(f.mbOutput), f.mbErr
	case "mirror":
		if f.failMirror > 0 {
			f.failMirror--
			return []byte("connection refused"), errors.New("exit status 1")
		}
	}
	return []byte("ok"), nil
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, strings.Join(c, " "))
	}
	return out
}

func testConfig() *types.Config {
	return &types.Config{
		Local: types.LocalConfig{Dir: "/data"},
		S3:    types.S3Config{Endpoint: "127.0.0.1:9000", Bucket: "bucket", Prefix: "backup/"},
		Auth:  types.AuthConfig{AccessKeyID: "ak", SecretAccessKey: "sk"},
		Mc:    types.McConfig{Path: "mc", Alias: "bs", Attempts: 3},
	}
}

func TestSyncUp(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig()
	cfg.Local.Exclude = []string{"*.tmp"}

	summary, err := New(cfg, runner, clockwork.NewFakeClock()).Sync(context.Background(), types.Up)
	require.NoError(t, err)
	assert.Equal(t, types.Up, summary.Direction)
	assert.Zero(t, summary.Transferred)

	want := []string{
		"mc alias set bs http://127.0.0.1:9000 ak sk",
		"mc mb --ignore-existing bs/bucket",
		"mc mirror --overwrite --exclude *.tmp /data bs/bucket/backup",
	}
	assert.Equal(t, want, runner.commands())
}

func TestSyncDownMirror(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig()
	cfg.S3.Prefix = ""
	cfg.S3.Secure = true
	cfg.Sync.DeleteExtraneous = true

	_, err := New(cfg, runner, clockwork.NewFakeClock()).Sync(context.Background(), types.Down)
	require.NoError(t, err)

	want := []string{
		"mc alias set bs https://127.0.0.1:9000 ak sk",
		"mc mirror --overwrite --remove bs/bucket /data",
	}
	assert.Equal(t, want, runner.commands())
}

func TestSyncMakeBucketAlreadyOwned(t *testing.T) {
	runner := &fakeRunner{
		mbOutput: "Your previous request to create the named bucket succeeded and you already own it.",
		mbErr:    errors.New("exit status 1"),
	}
	_, err := New(testConfig(), runner, clockwork.NewFakeClock()).Sync(context.Background(), types.Up)
	require.NoError(t, err)
}

func TestSyncMakeBucketFails(t *testing.T) {
	runner := &fakeRunner{mbOutput: "Access Denied.", mbErr: errors.New("exit status 1")}
	_, err := New(testConfig(), runner, clockwork.NewFakeClock()).Sync(context.Background(), types.Up)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access Denied")
}

func TestSyncRetriesWithBackoff(t *testing.T) {
	runner := &fakeRunner{failMirror: 2}
	clock := clockwork.NewFakeClock()
	m := New(testConfig(), runner, clock)

	done := make(chan error, 1)
	go func() {
		_, err := m.Sync(context.Background(), types.Down)
		done <- err
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	clock.BlockUntil(1)
	clock.Advance(2 * time.Second)

	require.NoError(t, <-done)
	mirrors := 0
	for _, c := range runner.commands() {
		if strings.HasPrefix(c, "mc mirror") {
			mirrors++
		}
	}
	assert.Equal(t, 3, mirrors)
}

func TestSyncGivesUpAfterAttempts(t *testing.T) {
	runner := &fakeRunner{failMirror: 5}
	cfg := testConfig()
	cfg.Mc.Attempts = 1

	_, err := New(cfg, runner, clockwork.NewFakeClock()).Sync(context.Background(), types.Down)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSyncCancelledDuringBackoff(t *testing.T) {
	runner := &fakeRunner{failMirror: 5}
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := New(testConfig(), runner, clock).Sync(ctx, types.Down)
		done <- err
	}()

	clock.BlockUntil(1)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestSyncUnknownDirection(t *testing.T) {
	runner := &fakeRunner{}
	_, err := New(testConfig(), runner, clockwork.NewFakeClock()).Sync(context.Background(), "both")
	require.Error(t, err)
	assert.Empty(t, runner.commands())
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0))
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
}
