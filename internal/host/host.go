package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/bundlex/internal/models"
	"github.com/desertthunder/bundlex/internal/shared"
	"github.com/desertthunder/bundlex/internal/watcher"
)

// RunRecorder persists task runs. [repositories.RunRepository] implements it.
type RunRecorder = models.Recorder

// Result is the outcome of a single task run.
type Result struct {
	Task     string
	RunID    string
	Outputs  []string // paths of the written files
	Steps    []string
	Duration time.Duration
	Err      error
}

// Host registers tasks and runs them once or on every matching file change.
type Host struct {
	mu    sync.Mutex
	tasks map[string]Task
	order []string
	locks map[string]*sync.Mutex

	settings   Settings
	logger     *log.Logger
	recorder   RunRecorder
	events     chan<- Event
	workDir    string
	debounce   time.Duration
	limit      rate.Limit
	burst      int
	newWatcher func() (watcher.Watcher, error)
}

// Option configures a [Host].
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(l *log.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithSettings sets the settings recorded with every run.
func WithSettings(s Settings) Option {
	return func(h *Host) { h.settings = s }
}

// WithRecorder persists every run through r.
func WithRecorder(r RunRecorder) Option {
	return func(h *Host) { h.recorder = r }
}

// WithEvents sends progress events on ch without blocking.
func WithEvents(ch chan<- Event) Option {
	return func(h *Host) { h.events = ch }
}

// WithWorkDir resolves relative watch globs against dir.
func WithWorkDir(dir string) Option {
	return func(h *Host) { h.workDir = dir }
}

// WithDebounce sets how long file events for the same path are merged.
func WithDebounce(d time.Duration) Option {
	return func(h *Host) { h.debounce = d }
}

// WithRateLimit throttles watch triggered re-runs per task.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(h *Host) {
		h.limit = r
		h.burst = burst
	}
}

// WithWatcher replaces the fsnotify watcher used in watch mode.
func WithWatcher(fn func() (watcher.Watcher, error)) Option {
	return func(h *Host) { h.newWatcher = fn }
}

// New creates a host with no tasks.
func New(opts ...Option) *Host {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	h := &Host{
		tasks:    make(map[string]Task),
		locks:    make(map[string]*sync.Mutex),
		logger:   shared.DiscardLogger(),
		workDir:  wd,
		debounce: 100 * time.Millisecond,
		limit:    rate.Limit(2),
		burst:    1,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.newWatcher == nil {
		h.newWatcher = h.defaultWatcher
	}
	return h
}

func (h *Host) defaultWatcher() (watcher.Watcher, error) {
	fsw, err := watcher.NewFSNotifyWatcher()
	if err != nil {
		return nil, err
	}
	return watcher.NewDebouncer(fsw, h.debounce), nil
}

// Register adds a task. Names must be unique.
func (h *Host) Register(t Task) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return fmt.Errorf("%w: task name is required", shared.ErrInvalidInput)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.tasks[name]; ok {
		return fmt.Errorf("%w: %s", shared.ErrDuplicateTask, name)
	}
	h.tasks[name] = t
	h.order = append(h.order, name)
	h.locks[name] = &sync.Mutex{}
	return nil
}

// Tasks returns the registered task names in registration order.
func (h *Host) Tasks() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

// Task looks up a registered task.
func (h *Host) Task(name string) (Task, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, name)
	}
	return t, nil
}

// Run executes one task now.
func (h *Host) Run(ctx context.Context, name string) (*Result, error) {
	t, err := h.Task(name)
	if err != nil {
		return nil, err
	}
	return h.run(ctx, t, "manual", "")
}

// RunAll executes every task in registration order and joins their errors.
func (h *Host) RunAll(ctx context.Context) ([]*Result, error) {
	names := h.Tasks()
	if len(names) == 0 {
		return nil, shared.ErrNoTasks
	}

	var (
		results []*Result
		errs    []error
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := h.Run(ctx, name)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return results, errors.Join(errs...)
}

// run executes t while holding the task's lock so runs of one task never overlap.
func (h *Host) run(ctx context.Context, t Task, cause, path string) (*Result, error) {
	name := t.Name()
	lock := h.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	logger := shared.WithLogger(h.logger, "task", name)
	run := models.NewRun(name, cause, h.settings.Production)
	h.startRun(ctx, run, logger)

	sendEvent(h.events, Event{Task: name, Kind: EventStarted, Path: path})
	logger.Info("running task", "cause", cause)

	start := time.Now()
	files, err := t.Build().Run(ctx)
	elapsed := time.Since(start)

	steps := stepsOf(t)
	run.RecordSteps(steps)
	if err != nil && errors.Is(err, context.Canceled) {
		run.Cancel()
	} else {
		run.Finish(err)
	}
	h.finishRun(ctx, run, logger)

	res := &Result{Task: name, RunID: run.ID(), Steps: steps, Duration: elapsed, Err: err}
	for _, f := range files {
		res.Outputs = append(res.Outputs, f.FullPath())
	}

	if err != nil {
		sendEvent(h.events, Event{Task: name, Kind: EventFailed, Path: path, Err: err, Duration: elapsed, Steps: steps})
		logger.Info("task stopped", "duration", elapsed.Round(time.Millisecond), "status", run.Status())
		return res, err
	}

	sendEvent(h.events, Event{Task: name, Kind: EventSucceeded, Path: path, Duration: elapsed, Steps: steps})
	logger.Info("task finished", "duration", elapsed.Round(time.Millisecond), "outputs", len(res.Outputs))
	return res, nil
}

func (h *Host) startRun(ctx context.Context, run *models.Run, logger *log.Logger) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.StartRun(ctx, run); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}

func (h *Host) finishRun(ctx context.Context, run *models.Run, logger *log.Logger) {
	if h.recorder == nil || run.ID() == "" {
		return
	}
	if err := h.recorder.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to record run outcome", "error", err)
	}
}

func (h *Host) lockFor(name string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.locks[name]
	if !ok {
		l = &sync.Mutex{}
		h.locks[name] = l
	}
	return l
}

func stepsOf(t Task) []string {
	if s, ok := t.(interface{ Steps() []string }); ok {
		return s.Steps()
	}
	return nil
}

func (h *Host) relative(path string) string {
	if rel, err := filepath.Rel(h.workDir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
