// Package watcher reports source file changes that should trigger a rebuild.
//
// [FSNotifyWatcher] watches directory trees with fsnotify, [Debouncer]
// coalesces bursts of events per path and [Matcher] decides which paths
// belong to a task using doublestar globs.
package watcher

import (
	"errors"
	"time"
)

var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrPathNotExist  = errors.New("path does not exist")
)

// Op is a bit set of file system operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a single change to a path.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Watcher delivers change events for the directories added to it.
type Watcher interface {
	// Add watches root and every directory below it.
	Add(root string) error
	// Events is closed when the watcher is closed.
	Events() <-chan Event
	// Errors is closed when the watcher is closed.
	Errors() <-chan error
	Close() error
}

// Config holds watcher options.
type Config struct {
	BufferSize   int      // event and error channel capacity
	IgnoreDirs   []string // directory names never descended into
	IgnoreHidden bool     // skip dot files and dot directories
}

// DefaultConfig skips dependency and VCS directories.
func DefaultConfig() Config {
	return Config{
		BufferSize:   100,
		IgnoreDirs:   []string{"node_modules", "vendor"},
		IgnoreHidden: true,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) Option {
	return func(c *Config) { c.BufferSize = size }
}

// WithIgnoreDirs replaces the ignored directory names.
func WithIgnoreDirs(names ...string) Option {
	return func(c *Config) { c.IgnoreDirs = names }
}

// WithIgnoreHidden toggles skipping of dot paths.
func WithIgnoreHidden(ignore bool) Option {
	return func(c *Config) { c.IgnoreHidden = ignore }
}
