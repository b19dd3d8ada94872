package host

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/bundlex/internal/minify"
	"github.com/desertthunder/bundlex/internal/shared"
	"github.com/desertthunder/bundlex/internal/sourcemap"
	"github.com/desertthunder/bundlex/internal/stream"
)

// Task is what the host needs from a registered task.
type Task interface {
	Name() string
	Build() *stream.Pipeline
	RegisterWatchers(w WatchRegistrar)
}

// Paths locates a task's input and output.
type Paths struct {
	SrcBaseDir string // directory watched for changes
	SrcPath    string // entry file, list of files or glob
	OutputDir  string
	OutputName string
}

// OutputPath is the full path of the written bundle.
func (p Paths) OutputPath() string {
	return filepath.Join(p.OutputDir, p.OutputName)
}

// Validate requires every field.
func (p Paths) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"source base directory", p.SrcBaseDir},
		{"source path", p.SrcPath},
		{"output directory", p.OutputDir},
		{"output name", p.OutputName},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", shared.ErrInvalidInput, f.name)
		}
	}
	return nil
}

// Settings are the host-wide switches a task reads.
type Settings struct {
	Production bool // minify output
	SourceMaps bool // write .map files next to the output
}

// Base carries the helpers tasks share. Embed a *Base created with [NewBase].
type Base struct {
	name     string
	settings Settings
	logger   *log.Logger
	watches  *WatchSet

	mu       sync.Mutex
	steps    []string
	failures int
	lastErr  error
}

// NewBase creates the helper state for the task called name. A nil logger discards output.
func NewBase(name string, settings Settings, logger *log.Logger) *Base {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Base{
		name:     name,
		settings: settings,
		logger:   shared.WithLogger(logger, "task", name),
		watches:  NewWatchSet(),
	}
}

func (b *Base) Name() string { return b.name }

// Logger returns the task's logger.
func (b *Base) Logger() *log.Logger { return b.logger }

// InProduction reports whether the host builds for production.
func (b *Base) InProduction() bool { return b.settings.Production }

// Settings returns the settings the task was created with.
func (b *Base) Settings() Settings { return b.settings }

// RecordStep appends a human readable step to the current run.
func (b *Base) RecordStep(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = append(b.steps, msg)
	b.logger.Debug("step", "message", msg)
}

// ResetSteps clears the recorded steps before a new run.
func (b *Base) ResetSteps() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = nil
}

// Steps returns the steps recorded since the last reset.
func (b *Base) Steps() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.steps)
}

// OnError returns the pipeline error handler: it logs the failure and counts it.
func (b *Base) OnError() stream.ErrorHandler {
	return func(err error) {
		b.mu.Lock()
		b.failures++
		b.lastErr = err
		b.mu.Unlock()

		b.logger.Error("task failed", "error", err)
	}
}

// Failures is the number of errors the handler has seen.
func (b *Base) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// LastError is the most recent error the handler has seen.
func (b *Base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Watch registers a glob on the task's own watch set.
func (b *Base) Watch(pattern string) *Watch {
	return b.watches.Watch(pattern)
}

// Watches returns the patterns registered through [Base.Watch].
func (b *Base) Watches() []*Watch {
	return b.watches.All()
}

// InitSourceMaps is the stage that picks up existing source maps.
func (b *Base) InitSourceMaps(opts sourcemap.LoadOptions) stream.Stage {
	return stream.InitSourceMaps(opts)
}

// WriteSourceMaps writes maps next to the output, or drops them when source maps are off.
func (b *Base) WriteSourceMaps() stream.Stage {
	return stream.WriteSourceMaps(b.settings.SourceMaps)
}

// Minify compresses scripts with opts in production and passes files through otherwise.
func (b *Base) Minify(opts minify.Options) stream.Stage {
	if !b.settings.Production {
		return stream.EachFile(minify.StageName, func(_ context.Context, f *stream.File) (*stream.File, error) {
			return f, nil
		})
	}
	return minify.Stage(opts)
}

// SaveAs writes the pipeline output into dir.
func (b *Base) SaveAs(dir string) stream.Stage {
	return stream.Dest(dir)
}

var _ WatchRegistrar = (*Base)(nil)
