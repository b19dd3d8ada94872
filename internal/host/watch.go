package host

import (
	"slices"
	"sync"
)

// WatchRegistrar collects the globs that should re-run a task.
type WatchRegistrar interface {
	Watch(pattern string) *Watch
}

// Watch is one registered glob and the paths excluded from it.
type Watch struct {
	mu      sync.Mutex
	pattern string
	ignored []string
}

// Ignore excludes paths (files or directories) from triggering the watch.
func (w *Watch) Ignore(paths ...string) *Watch {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ignored = append(w.ignored, paths...)
	return w
}

func (w *Watch) Pattern() string { return w.pattern }

func (w *Watch) Ignored() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.ignored)
}

// WatchSet is a [WatchRegistrar] that keeps registrations in order.
type WatchSet struct {
	mu      sync.Mutex
	watches []*Watch
}

func NewWatchSet() *WatchSet {
	return &WatchSet{}
}

func (s *WatchSet) Watch(pattern string) *Watch {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &Watch{pattern: pattern}
	s.watches = append(s.watches, w)
	return w
}

// All returns the registered watches.
func (s *WatchSet) All() []*Watch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.watches)
}

// Patterns returns every registered glob in order.
func (s *WatchSet) Patterns() []string {
	var out []string
	for _, w := range s.All() {
		out = append(out, w.Pattern())
	}
	return out
}
