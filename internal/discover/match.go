package discover

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
)

// Matcher decides whether a relative key takes part in a sync run.
//
// Patterns are shell-style globs applied to the whole forward-slash key, so
// `*` also matches across `/` (as with fnmatch). A pattern also matches when
// doublestar would match it, which lets a leading `**/` match zero
// directories: the default `**/*` includes files at the root.
type Matcher struct {
	include []pattern
	exclude []pattern
}

type pattern struct {
	raw string
	g   glob.Glob // nil when gobwas cannot express the pattern
}

func (p pattern) match(key string) bool {
	if p.g != nil && p.g.Match(key) {
		return true
	}
	ok, _ := doublestar.Match(p.raw, key)
	return ok
}

// NewMatcher compiles include and exclude patterns.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	inc, err := compilePatterns(include)
	if err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	exc, err := compilePatterns(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return &Matcher{include: inc, exclude: exc}, nil
}

func compilePatterns(raw []string) ([]pattern, error) {
	patterns := make([]pattern, 0, len(raw))
	for _, r := range raw {
		escaped := fnmatchLiterals(r)
		if !doublestar.ValidatePattern(escaped) {
			return nil, fmt.Errorf("invalid pattern %q", r)
		}
		// gobwas rejects some classes doublestar accepts, like [a-z0-9].
		g, err := glob.Compile(escaped)
		if err != nil {
			g = nil
		}
		patterns = append(patterns, pattern{raw: escaped, g: g})
	}
	return patterns, nil
}

// fnmatchLiterals escapes the characters both glob libraries treat as syntax
// but fnmatch does not: braces, backslashes, and a `[` that opens no class.
// A class needs at least one member, so `[]` and `[!]` open nothing.
func fnmatchLiterals(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '{', '}', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '[':
			end := classEnd(p, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			b.WriteByte('[')
			for _, m := range []byte(p[i+1 : end]) {
				if m == '\\' {
					b.WriteByte('\\')
				}
				b.WriteByte(m)
			}
			b.WriteByte(']')
			i = end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// classEnd returns the index of the `]` closing the class opened at p[open],
// or -1.
func classEnd(p string, open int) int {
	i := open + 1
	if i < len(p) && p[i] == '!' {
		i++
	}
	if i >= len(p) || p[i] == ']' {
		return -1
	}
	if j := strings.IndexByte(p[i:], ']'); j >= 0 {
		return i + j
	}
	return -1
}

// Match reports whether key is selected. Excludes win over includes, and an
// empty include list selects everything not excluded.
func (m *Matcher) Match(key string) bool {
	for _, p := range m.exclude {
		if p.match(key) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, p := range m.include {
		if p.match(key) {
			return true
		}
	}
	return false
}
