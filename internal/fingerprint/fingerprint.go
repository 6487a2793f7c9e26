// Package fingerprint decides whether an item differs between the local tree
// and the remote index. Two modes exist: size-only, which is cheap but misses
// same-size edits, and etag, which hashes the local file and compares the
// result with the remote ETag.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/13rac1/bucketsync/internal/discover"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/spf13/afero"
)

// ChunkSize is the read size used when hashing local files.
const ChunkSize = 1024 * 1024

// Reason explains why an item needs a transfer. The empty Reason means the
// item is in sync.
type Reason string

const (
	InSync         Reason = ""
	MissingRemote  Reason = "missing-remote"
	MissingLocal   Reason = "missing-local"
	SizeDiffers    Reason = "size-differs"
	ContentDiffers Reason = "content-differs"
)

// Policy applies one fingerprint mode to local/remote pairs.
type Policy struct {
	mode types.FingerprintMode
	fs   afero.Fs
}

// New returns a Policy for mode reading local files from fsys.
func New(mode types.FingerprintMode, fsys afero.Fs) (*Policy, error) {
	switch mode {
	case types.FingerprintSize, types.FingerprintETag:
	default:
		return nil, fmt.Errorf("unknown fingerprint mode %q", mode)
	}
	return &Policy{mode: mode, fs: fsys}, nil
}

// Mode returns the policy's mode.
func (p *Policy) Mode() types.FingerprintMode {
	return p.mode
}

// Decide compares the local file at localPath with remote. remoteExists is
// false when the key is absent from the remote index.
func (p *Policy) Decide(localPath string, remote discover.RemoteObject, remoteExists bool) (Reason, error) {
	if !remoteExists {
		return MissingRemote, nil
	}

	info, err := p.fs.Stat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return MissingLocal, nil
		}
		if p.mode == types.FingerprintSize {
			// Unreadable metadata is treated as changed.
			return SizeDiffers, nil
		}
		return InSync, fmt.Errorf("stat %s: %w", localPath, err)
	}

	if p.mode == types.FingerprintSize {
		if info.Size() != remote.Size {
			return SizeDiffers, nil
		}
		return InSync, nil
	}

	sum, err := ContentMD5(p.fs, localPath)
	if err != nil {
		return InSync, err
	}
	if sum != remote.ETag {
		return ContentDiffers, nil
	}
	return InSync, nil
}

// NeedsTransfer reports whether Decide found any difference.
func (p *Policy) NeedsTransfer(localPath string, remote discover.RemoteObject, remoteExists bool) (bool, error) {
	reason, err := p.Decide(localPath, remote, remoteExists)
	if err != nil {
		return false, err
	}
	return reason != InSync, nil
}

// ContentMD5 returns the hex MD5 of a file, read in ChunkSize chunks.
func ContentMD5(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := md5.New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("hashing %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
