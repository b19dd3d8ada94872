// package formatter provides functions to export run history to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/bundlex/internal/models"
	"github.com/desertthunder/bundlex/internal/shared"
)

// Format names an export format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, s)
}

// ExportToCSV converts runs to CSV format with columns: ID, Task, Status, Cause, Production, Started, Duration (ms), Error
func ExportToCSV(runs []*models.Run) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Task", "Status", "Cause", "Production", "Started", "Duration (ms)", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, run := range runs {
		record := []string{
			run.ID(),
			run.Task(),
			string(run.Status()),
			run.Cause(),
			strconv.FormatBool(run.Production()),
			run.StartedAt().UTC().Format(time.RFC3339),
			strconv.FormatInt(run.Duration().Milliseconds(), 10),
			run.ErrorText(),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts runs to a Markdown report grouped by task, with a status tally per task.
func ExportToMarkdown(runs []*models.Run) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Run history\n\n")
	buf.WriteString(fmt.Sprintf("**Runs**: %d\n\n", len(runs)))

	var order []string
	byTask := map[string][]*models.Run{}
	for _, run := range runs {
		if _, ok := byTask[run.Task()]; !ok {
			order = append(order, run.Task())
		}
		byTask[run.Task()] = append(byTask[run.Task()], run)
	}

	for _, task := range order {
		taskRuns := byTask[task]
		failed := 0
		for _, run := range taskRuns {
			if run.Status() == models.StatusFailed {
				failed++
			}
		}

		buf.WriteString(fmt.Sprintf("## %s\n\n", task))
		buf.WriteString(fmt.Sprintf("%d runs, %d failed\n\n", len(taskRuns), failed))
		buf.WriteString("| Started | Status | Cause | Duration |\n")
		buf.WriteString("|---|---|---|---|\n")
		for _, run := range taskRuns {
			buf.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				run.StartedAt().UTC().Format(time.DateTime),
				run.Status(),
				escapeCell(run.Cause()),
				formatDuration(run.Duration()),
			))
		}
		buf.WriteString("\n")

		for _, run := range taskRuns {
			if run.ErrorText() == "" {
				continue
			}
			buf.WriteString(fmt.Sprintf("### %s failed\n\n", run.StartedAt().UTC().Format(time.DateTime)))
			buf.WriteString("```\n" + run.ErrorText() + "\n```\n\n")
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts runs to plain text format, one summary line per run
func ExportToText(runs []*models.Run) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Runs: %d\n\n", len(runs)))
	for i, run := range runs {
		buf.WriteString(fmt.Sprintf("%d. %s %s\n", i+1, run.StartedAt().UTC().Format(time.DateTime), run.Summary()))
	}

	return buf.Bytes(), nil
}

// Export renders runs in format.
func Export(runs []*models.Run, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(runs)
	case FormatMarkdown:
		return ExportToMarkdown(runs)
	case FormatText:
		return ExportToText(runs)
	}
	return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, format)
}

// WriteExport writes runs to path in format, creating parent directories.
//
// Defaults to runs.{format} as the filename.
func WriteExport(runs []*models.Run, format Format, path string) (string, error) {
	if path == "" {
		path = "runs." + string(format)
	}

	data, err := Export(runs, format)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
