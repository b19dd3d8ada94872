package formatter

import (
	"encoding/csv"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/bundlex/internal/models"
	"github.com/desertthunder/bundlex/internal/shared"
	th "github.com/desertthunder/bundlex/internal/testing"
)

var started = time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

func newRun(id, task, cause string, status models.Status, errText string, d time.Duration) *models.Run {
	run := models.NewRun(task, cause, false)
	run.SetID(id)
	run.SetStartedAt(started)
	finished := started.Add(d)
	run.Restore(status, errText, &finished)
	return run
}

func testRuns() []*models.Run {
	return []*models.Run{
		newRun("run-1", "app", "src/app.js", models.StatusFailed, "bundle failed: could not resolve ./missing.js", 120*time.Millisecond),
		newRun("run-2", "app", "manual", models.StatusSucceeded, "", 80*time.Millisecond),
		newRun("run-3", "admin", "manual", models.StatusSucceeded, "", 40*time.Millisecond),
	}
}

func TestParseFormat(t *testing.T) {
	tc := []struct {
		in   string
		want Format
	}{
		{in: "csv", want: FormatCSV},
		{in: ".md", want: FormatMarkdown},
		{in: "Markdown", want: FormatMarkdown},
		{in: "text", want: FormatText},
	}
	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
			}
		})
	}

	if _, err := ParseFormat("xlsx"); !errors.Is(err, shared.ErrInvalidFlag) {
		t.Errorf("expected ErrInvalidFlag, got %v", err)
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testRuns())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(records) != 4 {
			t.Fatalf("expected header and 3 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "ID,Task,Status,Cause,Production,Started,Duration (ms),Error" {
			t.Errorf("CSV headers = %v", records[0])
		}

		first := records[1]
		if first[0] != "run-1" || first[2] != "failed" || first[5] != "2026-03-04T10:30:00Z" || first[6] != "120" {
			t.Errorf("first row = %v", first)
		}
		if !strings.Contains(first[7], "missing.js") {
			t.Errorf("CSV missing error text, got %v", first)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(testRuns())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Run history",
			"**Runs**: 3",
			"## app",
			"2 runs, 1 failed",
			"## admin",
			"| 2026-03-04 10:30:00 | failed | src/app.js | 120ms |",
			"could not resolve ./missing.js",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
		if strings.Index(output, "## app") > strings.Index(output, "## admin") {
			t.Error("tasks should appear in the order of their newest run")
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(testRuns())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		if !strings.HasPrefix(output, "Runs: 3\n") {
			t.Errorf("text missing run count, got: %s", output)
		}
		if !strings.Contains(output, "3. 2026-03-04 10:30:00 admin succeeded (manual)") {
			t.Errorf("text missing admin run, got: %s", output)
		}
	})

	t.Run("Export with unknown format", func(t *testing.T) {
		if _, err := Export(testRuns(), Format("pdf")); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}

func TestWriteExport(t *testing.T) {
	t.Run("WithCustomPath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reports", "runs.csv")

		got, err := WriteExport(testRuns(), FormatCSV, path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected path %s, got %s", path, got)
		}
		if content := th.MustReadFile(t, path); !strings.Contains(content, "run-3") {
			t.Errorf("export missing run-3, got: %s", content)
		}
	})

	t.Run("WithDefaultPath", func(t *testing.T) {
		th.Chdir(t, t.TempDir())

		got, err := WriteExport(testRuns(), FormatMarkdown, "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != "runs.md" {
			t.Errorf("expected runs.md, got %s", got)
		}
		th.AssertFileExists(t, "runs.md")
	})
}
