package watch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultIgnores are editor, VCS and package-manager paths that never
// trigger a reload.
var DefaultIgnores = []string{
	".git",
	"node_modules",
	".DS_Store",
	"*.swp",
	"*.swx",
	"*~",
	"*.tmp",
	"4913",
}

// IgnoreFilter rejects paths matching any of its glob patterns.
type IgnoreFilter struct {
	patterns []string
	globs    []glob.Glob
}

// NewIgnoreFilter compiles the patterns. Patterns use '/' as separator.
func NewIgnoreFilter(patterns []string) (*IgnoreFilter, error) {
	f := &IgnoreFilter{patterns: patterns, globs: make([]glob.Glob, 0, len(patterns))}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// Patterns returns the source patterns.
func (f *IgnoreFilter) Patterns() []string {
	return f.patterns
}

// Ignored reports whether rel, a path relative to the watched root, matches
// a pattern. A pattern matches the whole path, any single segment, or any
// trailing run of segments.
func (f *IgnoreFilter) Ignored(rel string) bool {
	if f == nil || len(f.globs) == 0 {
		return false
	}
	normalized := filepath.ToSlash(rel)
	parts := strings.Split(normalized, "/")

	for _, g := range f.globs {
		if g.Match(normalized) {
			return true
		}
		for i, part := range parts {
			if g.Match(part) || g.Match(strings.Join(parts[i:], "/")) {
				return true
			}
		}
	}
	return false
}
