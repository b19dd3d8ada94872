package watcher

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/desertthunder/bundlex/internal/shared"
)

// Matcher decides whether a changed path belongs to a set of include globs.
//
// Relative patterns and paths are resolved against the matcher's base
// directory. Ignored paths match exactly or as a directory prefix.
type Matcher struct {
	base     string
	includes []string
	ignores  []string
}

// NewMatcher validates the include globs and resolves everything against base.
func NewMatcher(base string, includes, ignores []string) (*Matcher, error) {
	m := &Matcher{base: filepath.Clean(base)}
	for _, p := range includes {
		abs := m.abs(p)
		if !doublestar.ValidatePathPattern(abs) {
			return nil, fmt.Errorf("%w: bad watch pattern %q", shared.ErrInvalidConfig, p)
		}
		m.includes = append(m.includes, abs)
	}
	for _, p := range ignores {
		m.ignores = append(m.ignores, m.abs(p))
	}
	return m, nil
}

// Match reports whether path matches an include glob and is not ignored.
func (m *Matcher) Match(path string) bool {
	abs := m.abs(path)
	for _, ig := range m.ignores {
		if abs == ig || strings.HasPrefix(abs, ig+string(filepath.Separator)) {
			return false
		}
	}
	for _, p := range m.includes {
		if ok, _ := doublestar.PathMatch(p, abs); ok {
			return true
		}
	}
	return false
}

// Roots returns the static directory prefix of every include glob, deduplicated and sorted.
func (m *Matcher) Roots() []string {
	var roots []string
	for _, p := range m.includes {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(p))
		root := filepath.FromSlash(base)
		if !slices.Contains(roots, root) {
			roots = append(roots, root)
		}
	}
	slices.Sort(roots)
	return roots
}

// Includes returns the resolved include globs.
func (m *Matcher) Includes() []string { return slices.Clone(m.includes) }

// Ignores returns the resolved ignored paths.
func (m *Matcher) Ignores() []string { return slices.Clone(m.ignores) }

func (m *Matcher) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(m.base, p)
}
