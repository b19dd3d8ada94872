package models

import (
	"context"
	"time"
)

// Entry is a persisted history record.
type Entry interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time // last write: the finish time once a run completes
	Validate() error
}

// Recorder writes runs as the host executes them. StartRun assigns the ID.
type Recorder interface {
	StartRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
}

// Filter narrows a run listing. Zero fields match every run.
type Filter struct {
	Task   string
	Status Status
	Limit  int
}

// RunStore is the full history surface: the host records through it and
// the history commands read and prune it.
type RunStore interface {
	Recorder
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, filter Filter) ([]*Run, error)
	Latest(ctx context.Context, task string) (*Run, error)
	Delete(ctx context.Context, id string) error
}

var _ Entry = (*Run)(nil)
