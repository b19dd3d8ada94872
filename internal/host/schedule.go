package host

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/time/rate"

	"github.com/desertthunder/bundlex/internal/shared"
	"github.com/desertthunder/bundlex/internal/watcher"
)

// worker re-runs one task. pending holds at most one queued trigger, so
// changes that arrive while a run is queued collapse into that run.
type worker struct {
	task     Task
	matchers []*watcher.Matcher
	pending  chan string
	limiter  *rate.Limiter
}

func (w *worker) matches(path string) bool {
	for _, m := range w.matchers {
		if m.Match(path) {
			return true
		}
	}
	return false
}

func (w *worker) enqueue(path string) bool {
	select {
	case w.pending <- path:
		return true
	default:
		return false
	}
}

// Watch re-runs tasks whenever a file matching their watch globs changes, until ctx is done.
//
// Runs of the same task never overlap. A change that arrives while the task
// is running queues one more run; further changes before that run starts are
// dropped. Queued runs wait on a per-task rate limiter.
func (h *Host) Watch(ctx context.Context) error {
	h.mu.Lock()
	tasks := make([]Task, 0, len(h.order))
	for _, name := range h.order {
		tasks = append(tasks, h.tasks[name])
	}
	h.mu.Unlock()

	if len(tasks) == 0 {
		return shared.ErrNoTasks
	}

	workers := make([]*worker, 0, len(tasks))
	var roots []string
	for _, t := range tasks {
		set := NewWatchSet()
		t.RegisterWatchers(set)

		wk := &worker{
			task:    t,
			pending: make(chan string, 1),
			limiter: rate.NewLimiter(h.limit, h.burst),
		}
		for _, reg := range set.All() {
			m, err := watcher.NewMatcher(h.workDir, []string{reg.Pattern()}, reg.Ignored())
			if err != nil {
				return fmt.Errorf("%s: %w", t.Name(), err)
			}
			wk.matchers = append(wk.matchers, m)
			for _, root := range m.Roots() {
				if !slices.Contains(roots, root) {
					roots = append(roots, root)
				}
			}
		}
		workers = append(workers, wk)
	}

	w, err := h.newWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrWatcherSetup, err)
	}
	defer w.Close()

	slices.Sort(roots)
	for _, root := range roots {
		if err := w.Add(root); err != nil {
			h.logger.Warn("cannot watch directory", "path", root, "error", err)
			continue
		}
		h.logger.Debug("watching", "path", root)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, wk := range workers {
		wg.Add(1)
		go func(wk *worker) {
			defer wg.Done()
			h.work(wctx, wk)
		}(wk)
		sendEvent(h.events, Event{Task: wk.task.Name(), Kind: EventWatching})
	}
	h.logger.Info("watching for changes", "tasks", len(workers), "directories", len(roots))

	err = h.listen(ctx, w, workers)
	cancel()
	wg.Wait()
	return err
}

// listen feeds watcher events to the workers until ctx is done or the watcher closes.
func (h *Host) listen(ctx context.Context, w watcher.Watcher, workers []*worker) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			h.dispatch(workers, ev)
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			h.logger.Warn("watcher error", "error", err)
		}
	}
}

func (h *Host) dispatch(workers []*worker, ev watcher.Event) {
	for _, wk := range workers {
		if !wk.matches(ev.Path) {
			continue
		}

		name := wk.task.Name()
		if wk.enqueue(ev.Path) {
			h.logger.Debug("change queued a run", "task", name, "path", ev.Path, "op", ev.Op)
			sendEvent(h.events, Event{Task: name, Kind: EventQueued, Path: ev.Path})
		} else {
			sendEvent(h.events, Event{Task: name, Kind: EventCoalesced, Path: ev.Path})
		}
	}
}

func (h *Host) work(ctx context.Context, wk *worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-wk.pending:
			if err := wk.limiter.Wait(ctx); err != nil {
				return
			}
			_, _ = h.run(ctx, wk.task, "watch: "+h.relative(path), path)
		}
	}
}
