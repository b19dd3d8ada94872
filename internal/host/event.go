package host

import (
	"time"
)

// EventKind identifies a step in a task's lifecycle.
type EventKind int

const (
	EventWatching  EventKind = iota // watch mode started for the task
	EventQueued                     // a change queued a run
	EventCoalesced                  // a change arrived while a run was already queued
	EventStarted
	EventSucceeded
	EventFailed
)

// String returns a human-readable representation of the kind.
func (k EventKind) String() string {
	switch k {
	case EventWatching:
		return "Watching"
	case EventQueued:
		return "Queued"
	case EventCoalesced:
		return "Coalesced"
	case EventStarted:
		return "Started"
	case EventSucceeded:
		return "Succeeded"
	case EventFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Event reports progress of a task to an observer such as the dashboard.
type Event struct {
	Task     string
	Kind     EventKind
	Path     string        // changed file, set for watch triggered events
	Err      error         // set for EventFailed
	Duration time.Duration // set for EventSucceeded and EventFailed
	Steps    []string      // recorded steps, set for EventSucceeded and EventFailed
	Time     time.Time
}

// sendEvent sends an event through the channel without blocking.
func sendEvent(events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case events <- ev:
	default:
	}
}
