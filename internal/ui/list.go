package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/bundlex/internal/host"
)

var _ list.Item = taskItem{}

// taskRow is the dashboard's view of one task.
type taskRow struct {
	name      string
	state     host.EventKind
	watching  bool
	runs      int
	failures  int
	coalesced int
	lastPath  string
	lastErr   error
	duration  time.Duration
	steps     []string
	updated   time.Time
}

// apply folds ev into the row.
func (r *taskRow) apply(ev host.Event) {
	r.updated = ev.Time
	switch ev.Kind {
	case host.EventWatching:
		r.watching = true
		r.state = ev.Kind
	case host.EventCoalesced:
		r.coalesced++
	case host.EventQueued:
		r.state = ev.Kind
		r.lastPath = ev.Path
	case host.EventStarted:
		r.state = ev.Kind
	case host.EventSucceeded:
		r.state = ev.Kind
		r.runs++
		r.duration = ev.Duration
		r.steps = ev.Steps
		r.lastErr = nil
	case host.EventFailed:
		r.state = ev.Kind
		r.runs++
		r.failures++
		r.duration = ev.Duration
		r.steps = ev.Steps
		r.lastErr = ev.Err
	}
}

// taskItem wraps a [taskRow] snapshot to implement [list.Item].
type taskItem struct {
	row taskRow
}

func (i taskItem) FilterValue() string { return i.row.name }
func (i taskItem) Title() string       { return i.row.name }
func (i taskItem) Description() string {
	desc := fmt.Sprintf("%s • %d runs", i.row.state, i.row.runs)
	if i.row.failures > 0 {
		desc = fmt.Sprintf("%s • %d failed", desc, i.row.failures)
	}
	if i.row.duration > 0 {
		desc = fmt.Sprintf("%s • %s", desc, i.row.duration.Round(time.Millisecond))
	}
	return desc
}
