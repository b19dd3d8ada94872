package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/bundlex/internal/shared"
)

// Status is the lifecycle state of a [Run].
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Step is a message a task recorded while it ran.
type Step struct {
	Position   int
	Message    string
	RecordedAt time.Time
}

// Run is one execution of a task.
type Run struct {
	id         string
	task       string
	cause      string
	status     Status
	errText    string
	production bool
	startedAt  time.Time
	finishedAt *time.Time
	steps      []Step
}

// NewRun creates a running [Run] started now. Cause describes what triggered it (manual, watch path).
func NewRun(task, cause string, production bool) *Run {
	if cause == "" {
		cause = "manual"
	}
	return &Run{
		task:       task,
		cause:      cause,
		status:     StatusRunning,
		production: production,
		startedAt:  time.Now(),
	}
}

func (r *Run) ID() string { return r.id }
func (r *Run) Task() string { return r.task }
func (r *Run) Cause() string { return r.cause }
func (r *Run) Status() Status { return r.status }
func (r *Run) ErrorText() string { return r.errText }
func (r *Run) Production() bool { return r.production }
func (r *Run) StartedAt() time.Time { return r.startedAt }
func (r *Run) FinishedAt() *time.Time { return r.finishedAt }
func (r *Run) CreatedAt() time.Time { return r.startedAt }
func (r *Run) Steps() []Step { return r.steps }
func (r *Run) SetID(id string) { r.id = id }
func (r *Run) SetStartedAt(t time.Time) { r.startedAt = t }

// UpdatedAt is the finish time of a completed run and the start time otherwise.
func (r *Run) UpdatedAt() time.Time {
	if r.finishedAt != nil {
		return *r.finishedAt
	}
	return r.startedAt
}

// Duration is the elapsed time of a completed run, zero while running.
func (r *Run) Duration() time.Duration {
	if r.finishedAt == nil {
		return 0
	}
	return r.finishedAt.Sub(r.startedAt)
}

// RecordSteps replaces the run's steps with messages, numbered from zero.
func (r *Run) RecordSteps(messages []string) {
	now := time.Now()
	r.steps = make([]Step, len(messages))
	for i, m := range messages {
		r.steps[i] = Step{Position: i, Message: m, RecordedAt: now}
	}
}

// SetSteps restores persisted steps.
func (r *Run) SetSteps(steps []Step) { r.steps = steps }

// Finish marks the run complete. A nil err succeeds; any other error fails the run.
func (r *Run) Finish(err error) {
	now := time.Now()
	r.finishedAt = &now
	if err == nil {
		r.status = StatusSucceeded
		r.errText = ""
		return
	}
	r.status = StatusFailed
	r.errText = err.Error()
}

// Cancel marks the run as stopped before completion.
func (r *Run) Cancel() {
	now := time.Now()
	r.finishedAt = &now
	r.status = StatusCancelled
}

// Restore sets the fields read back from storage.
func (r *Run) Restore(status Status, errText string, finishedAt *time.Time) {
	r.status = status
	r.errText = errText
	r.finishedAt = finishedAt
}

// Validate checks the run before it is persisted.
func (r *Run) Validate() error {
	if strings.TrimSpace(r.task) == "" {
		return fmt.Errorf("%w: run task is required", shared.ErrInvalidInput)
	}
	if !r.status.Valid() {
		return fmt.Errorf("%w: unknown run status %q", shared.ErrInvalidInput, r.status)
	}
	if r.startedAt.IsZero() {
		return fmt.Errorf("%w: run start time is required", shared.ErrInvalidInput)
	}
	return nil
}

// Summary is a single line describing the run.
func (r *Run) Summary() string {
	s := fmt.Sprintf("%s %s (%s)", r.task, r.status, r.cause)
	if d := r.Duration(); d > 0 {
		s += " in " + d.Round(time.Millisecond).String()
	}
	if r.errText != "" {
		s += ": " + firstLine(r.errText)
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var _ Entry = (*Run)(nil)
