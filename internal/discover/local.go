// Package discover builds the two views a sync run compares: the local file
// set, enumerated lazily from a directory tree, and the remote index, built
// from a recursive listing of a bucket prefix.
package discover

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// LocalFile is a regular file found under the local root.
type LocalFile struct {
	Path string // Full path to local file
	Key  string // Forward-slash key relative to the root
	Size int64
}

// LocalEnumerator walks a local root and yields the files the matcher selects.
type LocalEnumerator struct {
	fs      afero.Fs
	root    string
	matcher *Matcher
}

// NewLocalEnumerator creates an enumerator over root. A nil matcher selects
// every file.
func NewLocalEnumerator(fs afero.Fs, root string, matcher *Matcher) *LocalEnumerator {
	if matcher == nil {
		matcher = &Matcher{}
	}
	return &LocalEnumerator{fs: fs, root: root, matcher: matcher}
}

var errStopWalk = errors.New("stop walk")

// Files returns a lazy depth-first sequence of selected files. Every call
// starts a fresh traversal. A read failure is yielded once and ends the
// sequence.
func (e *LocalEnumerator) Files() iter.Seq2[LocalFile, error] {
	return func(yield func(LocalFile, error) bool) {
		err := afero.Walk(e.fs, e.root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			if !info.Mode().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(e.root, path)
			if err != nil {
				return fmt.Errorf("computing relative path for %s: %w", path, err)
			}

			key := ToKey(rel)
			if !e.matcher.Match(key) {
				return nil
			}

			if !yield(LocalFile{Path: path, Key: key, Size: info.Size()}, nil) {
				return errStopWalk
			}
			return nil
		})

		if err != nil && !errors.Is(err, errStopWalk) {
			yield(LocalFile{}, fmt.Errorf("walking directory %s: %w", e.root, err))
		}
	}
}

// Keys fully realizes the selected file set as key -> full path.
func (e *LocalEnumerator) Keys() (map[string]string, error) {
	keys := make(map[string]string)
	for f, err := range e.Files() {
		if err != nil {
			return nil, err
		}
		keys[f.Key] = f.Path
	}
	return keys, nil
}

// ToKey converts a relative filesystem path to a relative key. Only the OS
// separator is rewritten; the name bytes are kept as-is so that distinct
// files always map to distinct keys.
func ToKey(rel string) string {
	return filepath.ToSlash(rel)
}

// LocalPath converts a relative key back to a path under root. Keys that
// would resolve outside root are rejected.
func LocalPath(root, key string) (string, error) {
	p := filepath.Join(root, filepath.FromSlash(key))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes local root", key)
	}
	return p, nil
}
