package fingerprint

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/13rac1/bucketsync/internal/discover"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New("crc32", afero.NewMemMapFs())
	require.Error(t, err)
}

func TestDecide(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/f", []byte("hello"), 0644))

	tests := []struct {
		name   string
		mode   types.FingerprintMode
		path   string
		remote discover.RemoteObject
		exists bool
		want   Reason
	}{
		{name: "size absent remote", mode: types.FingerprintSize, path: "/f", exists: false, want: MissingRemote},
		{name: "size equal", mode: types.FingerprintSize, path: "/f", remote: discover.RemoteObject{Size: 5}, exists: true, want: InSync},
		{name: "size differs", mode: types.FingerprintSize, path: "/f", remote: discover.RemoteObject{Size: 6}, exists: true, want: SizeDiffers},
		{name: "size same-size edit missed", mode: types.FingerprintSize, path: "/f", remote: discover.RemoteObject{Size: 5, ETag: md5Hex([]byte("world"))}, exists: true, want: InSync},
		{name: "size missing local", mode: types.FingerprintSize, path: "/nope", remote: discover.RemoteObject{Size: 5}, exists: true, want: MissingLocal},
		{name: "etag absent remote", mode: types.FingerprintETag, path: "/f", exists: false, want: MissingRemote},
		{name: "etag equal", mode: types.FingerprintETag, path: "/f", remote: discover.RemoteObject{Size: 5, ETag: md5Hex([]byte("hello"))}, exists: true, want: InSync},
		{name: "etag same-size edit caught", mode: types.FingerprintETag, path: "/f", remote: discover.RemoteObject{Size: 5, ETag: md5Hex([]byte("world"))}, exists: true, want: ContentDiffers},
		{name: "etag multipart never matches", mode: types.FingerprintETag, path: "/f", remote: discover.RemoteObject{Size: 5, ETag: md5Hex([]byte("hello")) + "-2"}, exists: true, want: ContentDiffers},
		{name: "etag missing local", mode: types.FingerprintETag, path: "/nope", remote: discover.RemoteObject{Size: 5}, exists: true, want: MissingLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.mode, fs)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, p.Mode())

			got, err := p.Decide(tt.path, tt.remote, tt.exists)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			needs, err := p.NeedsTransfer(tt.path, tt.remote, tt.exists)
			require.NoError(t, err)
			assert.Equal(t, tt.want != InSync, needs)
		})
	}
}

func TestContentMD5SpansChunks(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := bytes.Repeat([]byte("0123456789abcdef"), ChunkSize/8+3)
	require.NoError(t, afero.WriteFile(fs, "/big", data, 0644))

	got, err := ContentMD5(fs, "/big")
	require.NoError(t, err)
	assert.Equal(t, md5Hex(data), got)
}

func TestContentMD5Empty(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/empty", nil, 0644))

	got, err := ContentMD5(fs, "/empty")
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", got)
}

func TestContentMD5MissingFile(t *testing.T) {
	_, err := ContentMD5(afero.NewMemMapFs(), "/missing")
	require.Error(t, err)
}
