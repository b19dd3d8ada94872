package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/bundlex/internal/shared"
)

func TestRun(t *testing.T) {
	t.Run("NewRun defaults", func(t *testing.T) {
		r := NewRun("app", "", true)
		if r.Cause() != "manual" || r.Status() != StatusRunning || !r.Production() {
			t.Errorf("NewRun() = %+v", r)
		}
		if r.Duration() != 0 || r.FinishedAt() != nil {
			t.Error("a running run has no finish time")
		}
		if !r.UpdatedAt().Equal(r.StartedAt()) {
			t.Error("UpdatedAt should equal StartedAt while running")
		}
	})

	t.Run("Finish", func(t *testing.T) {
		ok := NewRun("app", "watch", false)
		ok.Finish(nil)
		if ok.Status() != StatusSucceeded || ok.ErrorText() != "" || ok.FinishedAt() == nil {
			t.Errorf("successful run = %+v", ok)
		}

		failed := NewRun("app", "watch", false)
		failed.Finish(errors.New("bundle failed: src/app.js\nmore detail"))
		if failed.Status() != StatusFailed {
			t.Errorf("status = %v, want failed", failed.Status())
		}
		if !strings.Contains(failed.Summary(), "bundle failed: src/app.js") || strings.Contains(failed.Summary(), "more detail") {
			t.Errorf("Summary() = %q", failed.Summary())
		}
	})

	t.Run("RecordSteps", func(t *testing.T) {
		r := NewRun("app", "", false)
		r.RecordSteps([]string{"Transforming ES2015 to ES5", "Bundling"})

		steps := r.Steps()
		if len(steps) != 2 || steps[1].Position != 1 || steps[1].Message != "Bundling" {
			t.Errorf("Steps() = %+v", steps)
		}
	})
}

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name    string
		run     func() *Run
		wantErr bool
	}{
		{name: "valid", run: func() *Run { return NewRun("app", "", false) }},
		{name: "missing task", run: func() *Run { return NewRun("  ", "", false) }, wantErr: true},
		{
			name: "unknown status",
			run: func() *Run {
				r := NewRun("app", "", false)
				r.Restore(Status("paused"), "", nil)
				return r
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run().Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("Validate() error should wrap ErrInvalidInput, got %v", err)
			}
		})
	}
}
