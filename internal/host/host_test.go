package host

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"

	"github.com/desertthunder/bundlex/internal/minify"
	"github.com/desertthunder/bundlex/internal/models"
	"github.com/desertthunder/bundlex/internal/shared"
	"github.com/desertthunder/bundlex/internal/stream"
	"github.com/desertthunder/bundlex/internal/watcher"
)

type fakeTask struct {
	*Base
	patterns []string
	source   stream.Source
	builds   atomic.Int32
}

func newFakeTask(name string, source stream.Source, patterns ...string) *fakeTask {
	return &fakeTask{Base: NewBase(name, Settings{}, nil), source: source, patterns: patterns}
}

func (f *fakeTask) Build() *stream.Pipeline {
	f.builds.Add(1)
	f.ResetSteps()
	f.RecordStep("Bundling")
	return stream.From(f.source).OnError(f.OnError())
}

func (f *fakeTask) RegisterWatchers(w WatchRegistrar) {
	for _, p := range f.patterns {
		w.Watch(p).Ignore("/src/dist")
	}
}

func okSource(context.Context) ([]*stream.File, error) {
	return []*stream.File{{Path: "app.js", Base: "/out"}}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []*models.Run
	finished []*models.Run
}

func (r *fakeRecorder) StartRun(_ context.Context, run *models.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.SetID(shared.GenerateID())
	r.started = append(r.started, run)
	return nil
}

func (r *fakeRecorder) FinishRun(_ context.Context, run *models.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, run)
	return nil
}

type fakeWatcher struct {
	mu     sync.Mutex
	added  []string
	events chan watcher.Event
	errors chan error
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{events: make(chan watcher.Event), errors: make(chan error)}
}

func (w *fakeWatcher) Add(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added = append(w.added, root)
	return nil
}

func (w *fakeWatcher) Events() <-chan watcher.Event { return w.events }
func (w *fakeWatcher) Errors() <-chan error         { return w.errors }
func (w *fakeWatcher) Close() error                 { return nil }

func (w *fakeWatcher) send(t *testing.T, path string) {
	t.Helper()
	select {
	case w.events <- watcher.Event{Path: path, Op: watcher.OpWrite}:
	case <-time.After(5 * time.Second):
		t.Fatalf("watch loop did not accept event for %s", path)
	}
}

func TestPaths(t *testing.T) {
	p := Paths{SrcBaseDir: "src", SrcPath: "src/app.js", OutputDir: "public/js", OutputName: "app.js"}
	if got := p.OutputPath(); got != filepath.Join("public", "js", "app.js") {
		t.Errorf("OutputPath() = %q", got)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	p.OutputName = ""
	if err := p.Validate(); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("Validate() error = %v, want ErrInvalidInput", err)
	}
}

func TestBase(t *testing.T) {
	t.Run("steps", func(t *testing.T) {
		b := NewBase("app", Settings{}, nil)
		b.RecordStep("Transforming ES2015 to ES5")
		b.RecordStep("Bundling")

		if diff := cmp.Diff([]string{"Transforming ES2015 to ES5", "Bundling"}, b.Steps()); diff != "" {
			t.Errorf("Steps() mismatch (-want +got):\n%s", diff)
		}
		b.ResetSteps()
		if len(b.Steps()) != 0 {
			t.Error("ResetSteps() should clear steps")
		}
	})

	t.Run("error handler counts failures", func(t *testing.T) {
		b := NewBase("app", Settings{}, nil)
		boom := errors.New("boom")
		handler := b.OnError()
		handler(boom)

		if b.Failures() != 1 || !errors.Is(b.LastError(), boom) {
			t.Errorf("Failures() = %d, LastError() = %v", b.Failures(), b.LastError())
		}
	})

	t.Run("watch registration", func(t *testing.T) {
		b := NewBase("app", Settings{}, nil)
		b.Watch("/src/**/*.js").Ignore("/public/js/app.js")

		watches := b.Watches()
		if len(watches) != 1 || watches[0].Pattern() != "/src/**/*.js" {
			t.Fatalf("Watches() = %+v", watches)
		}
		if diff := cmp.Diff([]string{"/public/js/app.js"}, watches[0].Ignored()); diff != "" {
			t.Errorf("Ignored() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("minify follows production flag", func(t *testing.T) {
		src := "function add(first, second) { return first + second }\n"
		for _, prod := range []bool{false, true} {
			b := NewBase("app", Settings{Production: prod}, nil)
			files, err := stream.From(func(context.Context) ([]*stream.File, error) {
				return []*stream.File{stream.NewFile("app.js", []byte(src))}, nil
			}).Pipe(b.Minify(minify.DefaultOptions())).Run(context.Background())
			if err != nil {
				t.Fatalf("production=%v: Run() error = %v", prod, err)
			}

			unchanged := string(files[0].Contents) == src
			if unchanged == prod {
				t.Errorf("production=%v: unchanged = %v", prod, unchanged)
			}
			if b.InProduction() != prod {
				t.Errorf("InProduction() = %v", b.InProduction())
			}
		}
	})
}

func TestHostRegister(t *testing.T) {
	h := New()

	if err := h.Register(newFakeTask("app", okSource)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := h.Register(newFakeTask("app", okSource)); !errors.Is(err, shared.ErrDuplicateTask) {
		t.Errorf("duplicate Register() error = %v", err)
	}
	if err := h.Register(newFakeTask(" ", okSource)); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("empty name Register() error = %v", err)
	}
	if _, err := h.Run(context.Background(), "missing"); !errors.Is(err, shared.ErrTaskNotFound) {
		t.Errorf("Run(missing) error = %v", err)
	}
	if diff := cmp.Diff([]string{"app"}, h.Tasks()); diff != "" {
		t.Errorf("Tasks() mismatch (-want +got):\n%s", diff)
	}
}

func TestHostRun(t *testing.T) {
	t.Run("records a successful run", func(t *testing.T) {
		rec := &fakeRecorder{}
		events := make(chan Event, 10)
		h := New(WithRecorder(rec), WithEvents(events), WithSettings(Settings{Production: true}))
		_ = h.Register(newFakeTask("app", okSource))

		res, err := h.Run(context.Background(), "app")
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if diff := cmp.Diff([]string{filepath.Join("/out", "app.js")}, res.Outputs); diff != "" {
			t.Errorf("Outputs mismatch (-want +got):\n%s", diff)
		}
		if res.RunID == "" {
			t.Error("RunID should come from the recorder")
		}

		if len(rec.finished) != 1 {
			t.Fatalf("expected 1 finished run, got %d", len(rec.finished))
		}
		run := rec.finished[0]
		if run.Status() != models.StatusSucceeded || !run.Production() || len(run.Steps()) != 1 {
			t.Errorf("run = %s, steps = %+v", run.Summary(), run.Steps())
		}

		if ev := <-events; ev.Kind != EventStarted {
			t.Errorf("first event = %v, want Started", ev.Kind)
		}
		if ev := <-events; ev.Kind != EventSucceeded || ev.Steps[0] != "Bundling" {
			t.Errorf("second event = %+v", ev)
		}
	})

	t.Run("records a failed run", func(t *testing.T) {
		rec := &fakeRecorder{}
		boom := errors.New("bundle failed")
		task := newFakeTask("app", func(context.Context) ([]*stream.File, error) { return nil, boom })
		h := New(WithRecorder(rec))
		_ = h.Register(task)

		res, err := h.Run(context.Background(), "app")
		if !errors.Is(err, boom) || !errors.Is(res.Err, boom) {
			t.Fatalf("Run() error = %v", err)
		}
		if task.Failures() != 1 {
			t.Errorf("error handler called %d times, want 1", task.Failures())
		}
		if rec.finished[0].Status() != models.StatusFailed || rec.finished[0].ErrorText() != "bundle failed" {
			t.Errorf("run = %s", rec.finished[0].Summary())
		}
	})

	t.Run("logs a failure once", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&buf)
		task := &fakeTask{
			Base: NewBase("app", Settings{}, logger),
			source: func(context.Context) ([]*stream.File, error) {
				return nil, errors.New("unresolved import")
			},
		}
		h := New(WithLogger(logger))
		_ = h.Register(task)

		if _, err := h.Run(context.Background(), "app"); err == nil {
			t.Fatal("Run() should fail")
		}
		out := buf.String()
		if n := strings.Count(out, "unresolved import"); n != 1 {
			t.Errorf("error logged %d times, want 1:\n%s", n, out)
		}
		if !strings.Contains(out, "task stopped") || !strings.Contains(out, "status=failed") {
			t.Errorf("missing run summary:\n%s", out)
		}
	})

	t.Run("RunAll joins errors", func(t *testing.T) {
		h := New()
		_ = h.Register(newFakeTask("ok", okSource))
		_ = h.Register(newFakeTask("bad", func(context.Context) ([]*stream.File, error) {
			return nil, shared.ErrBundle
		}))

		results, err := h.RunAll(context.Background())
		if !errors.Is(err, shared.ErrBundle) {
			t.Errorf("RunAll() error = %v, want ErrBundle", err)
		}
		if len(results) != 2 {
			t.Errorf("RunAll() returned %d results", len(results))
		}
	})

	t.Run("RunAll without tasks", func(t *testing.T) {
		if _, err := New().RunAll(context.Background()); !errors.Is(err, shared.ErrNoTasks) {
			t.Errorf("RunAll() error = %v, want ErrNoTasks", err)
		}
	})
}

func TestHostWatchCoalescesTriggers(t *testing.T) {
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	task := newFakeTask("app", func(ctx context.Context) ([]*stream.File, error) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, nil
	}, "/src/**/*.js")

	fw := newFakeWatcher()
	events := make(chan Event, 100)
	h := New(
		WithWorkDir("/"),
		WithEvents(events),
		WithRateLimit(rate.Inf, 1),
		WithWatcher(func() (watcher.Watcher, error) { return fw, nil }),
	)
	if err := h.Register(task); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	fw.send(t, "/src/app.js")
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}

	for range 5 {
		fw.send(t, "/src/components/widget.js")
	}
	fw.send(t, "/src/dist/app.js")
	fw.send(t, "/docs/readme.md")
	close(release)

	succeeded, coalesced := 0, 0
	timeout := time.After(5 * time.Second)
	for succeeded < 2 {
		select {
		case ev := <-events:
			switch ev.Kind {
			case EventSucceeded:
				succeeded++
			case EventCoalesced:
				coalesced++
			}
		case <-timeout:
			t.Fatalf("timed out with %d successful runs", succeeded)
		}
	}

	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}

	if got := task.builds.Load(); got != 2 {
		t.Errorf("task ran %d times, want 2", got)
	}
	if coalesced != 4 {
		t.Errorf("coalesced = %d, want 4", coalesced)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if diff := cmp.Diff([]string{"/src"}, fw.added); diff != "" {
		t.Errorf("watched roots mismatch (-want +got):\n%s", diff)
	}
}

func TestHostWatchWithoutTasks(t *testing.T) {
	if err := New().Watch(context.Background()); !errors.Is(err, shared.ErrNoTasks) {
		t.Errorf("Watch() error = %v, want ErrNoTasks", err)
	}
}
