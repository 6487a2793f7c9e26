// Package mcmirror synchronizes by delegating to the MinIO client binary
// (mc). It satisfies the same contract as the built-in engine but cannot
// report per-item counts, so its summaries carry only direction and duration.
package mcmirror

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/13rac1/bucketsync/internal/config"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/jonboulle/clockwork"
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args, capturing stdout and stderr together.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Mirror runs `mc mirror` between the local directory and bucket/prefix.
type Mirror struct {
	cfg    *types.Config
	runner Runner
	clock  clockwork.Clock
}

// New creates a Mirror. A nil runner uses ExecRunner; a nil clock uses the
// real clock.
func New(cfg *types.Config, runner Runner, clock clockwork.Clock) *Mirror {
	if runner == nil {
		runner = ExecRunner{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Mirror{cfg: cfg, runner: runner, clock: clock}
}

// Sync registers the alias, ensures the bucket for uploads, then mirrors in
// the requested direction, retrying the mirror step with exponential backoff.
func (m *Mirror) Sync(ctx context.Context, dir types.Direction) (types.Summary, error) {
	start := m.clock.Now()
	summary := types.Summary{Direction: dir}
	if !dir.Valid() {
		return summary, fmt.Errorf("unknown direction %q", dir)
	}

	if err := m.aliasSet(ctx); err != nil {
		return summary, err
	}

	if dir == types.Up && m.cfg.S3.EnsureBucket() {
		if err := m.makeBucket(ctx); err != nil {
			return summary, err
		}
	}

	src, dst := m.cfg.Local.Dir, m.target()
	if dir == types.Down {
		src, dst = dst, src
	}

	err := m.mirror(ctx, src, dst)
	summary.Duration = m.clock.Since(start)
	return summary, err
}

func (m *Mirror) aliasSet(ctx context.Context) error {
	endpoint := config.EndpointURL(m.cfg.S3)
	// Arguments include the secret key, so they are never logged.
	out, err := m.runner.Run(ctx, m.cfg.Mc.Path, "alias", "set", m.cfg.Mc.Alias, endpoint,
		m.cfg.Auth.AccessKeyID, m.cfg.Auth.SecretAccessKey)
	if err != nil {
		return fmt.Errorf("mc alias set %s failed: %w: %s", m.cfg.Mc.Alias, err, trim(out))
	}
	return nil
}

func (m *Mirror) makeBucket(ctx context.Context) error {
	target := m.cfg.Mc.Alias + "/" + m.cfg.S3.Bucket
	out, err := m.runner.Run(ctx, m.cfg.Mc.Path, "mb", "--ignore-existing", target)
	if err != nil && !strings.Contains(string(out), "already own it") {
		return fmt.Errorf("mc mb %s failed: %w: %s", target, err, trim(out))
	}
	return nil
}

func (m *Mirror) mirror(ctx context.Context, src, dst string) error {
	args := []string{"mirror", "--overwrite"}
	if m.cfg.Sync.DeleteExtraneous {
		args = append(args, "--remove")
	}
	for _, pattern := range m.cfg.Local.Exclude {
		args = append(args, "--exclude", pattern)
	}
	args = append(args, src, dst)

	attempts := max(m.cfg.Mc.Attempts, 1)
	var lastErr error
	for i := range attempts {
		slog.Info("running mc mirror", "src", src, "dst", dst, "attempt", i+1)
		out, err := m.runner.Run(ctx, m.cfg.Mc.Path, args...)
		if err == nil {
			slog.Debug("mc mirror finished", "output", trim(out))
			return nil
		}
		lastErr = fmt.Errorf("mc mirror %s %s failed: %w: %s", src, dst, err, trim(out))
		slog.Warn("mc mirror failed", "attempt", i+1, "error", lastErr)

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.clock.After(backoff(i)):
			}
		}
	}
	return lastErr
}

// target is the mc path of the bucket and prefix.
func (m *Mirror) target() string {
	t := m.cfg.Mc.Alias + "/" + m.cfg.S3.Bucket
	if p := strings.TrimSuffix(m.cfg.S3.Prefix, "/"); p != "" {
		t += "/" + p
	}
	return t
}

// backoff returns the wait after the i-th failed attempt: 1s, 2s, 4s...
func backoff(i int) time.Duration {
	return time.Duration(1<<i) * time.Second
}

func trim(out []byte) string {
	return strings.TrimSpace(string(out))
}
