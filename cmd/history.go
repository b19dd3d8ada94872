package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/bundlex/internal/formatter"
	"github.com/desertthunder/bundlex/internal/models"
	"github.com/desertthunder/bundlex/internal/repositories"
	"github.com/desertthunder/bundlex/internal/shared"
	"github.com/desertthunder/bundlex/internal/ui"
)

var styles = struct {
	header lipgloss.Style
	ok     lipgloss.Style
	fail   lipgloss.Style
	warn   lipgloss.Style
	muted  lipgloss.Style
}{
	header: ui.NewBold("#7D56F4"),
	ok:     ui.NewBold("#04B575"),
	fail:   ui.NewBold("#FF0000"),
	warn:   ui.NewStyle("#FFA500"),
	muted:  ui.NewStyle("#626262"),
}

// runView is the JSON shape of a recorded run.
type runView struct {
	ID         string     `json:"id"`
	Task       string     `json:"task"`
	Cause      string     `json:"cause"`
	Status     string     `json:"status"`
	Production bool       `json:"production"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Steps      []string   `json:"steps,omitempty"`
}

func newRunView(run *models.Run) runView {
	v := runView{
		ID:         run.ID(),
		Task:       run.Task(),
		Cause:      run.Cause(),
		Status:     string(run.Status()),
		Production: run.Production(),
		Error:      run.ErrorText(),
		StartedAt:  run.StartedAt(),
		FinishedAt: run.FinishedAt(),
		DurationMS: run.Duration().Milliseconds(),
	}
	for _, s := range run.Steps() {
		v.Steps = append(v.Steps, s.Message)
	}
	return v
}

func (r *Runner) runRepository() (models.RunStore, func(), error) {
	if r.config.Database.Path == "" {
		return nil, nil, fmt.Errorf("%w: database.path is not set", shared.ErrMissingConfig)
	}
	db, err := r.openHistory()
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewRunRepository(db), func() { db.Close() }, nil
}

// listRuns applies the history filter flags.
func (r *Runner) listRuns(ctx context.Context, cmd *cli.Command) ([]*models.Run, error) {
	status := models.Status(cmd.String("status"))
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrInvalidFlag, status)
	}

	repo, closeDB, err := r.runRepository()
	if err != nil {
		return nil, err
	}
	defer closeDB()

	return repo.List(ctx, models.Filter{
		Task:   cmd.String("task"),
		Status: status,
		Limit:  int(cmd.Int("limit")),
	})
}

// History lists recorded runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	runs, err := r.listRuns(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]runView, 0, len(runs))
		for _, run := range runs {
			views = append(views, newRunView(run))
		}
		return r.writeJSON(views, true)
	}

	if len(runs) == 0 {
		r.writePlain("No runs recorded\n")
		return nil
	}

	r.writePlain("%s\n", styles.header.Render(fmt.Sprintf("%-8s  %-12s  %-10s  %-8s  %-19s  %s", "ID", "TASK", "STATUS", "TIME", "STARTED", "CAUSE")))
	for _, run := range runs {
		line := fmt.Sprintf("%-8s  %-12s  %s  %-8s  %-19s  %s",
			shortID(run.ID()),
			run.Task(),
			renderStatus(run.Status(), 10),
			formatDuration(run.Duration()),
			run.StartedAt().Local().Format(time.DateTime),
			run.Cause(),
		)
		r.writePlain("%s\n", line)
		if text := run.ErrorText(); text != "" {
			r.writePlain("          %s\n", styles.muted.Render(firstLine(text)))
		}
	}
	return nil
}

// HistoryExport writes the filtered runs with the formatter package.
func (r *Runner) HistoryExport(ctx context.Context, cmd *cli.Command) error {
	output := cmd.String("output")
	name := cmd.String("format")
	if name == "" {
		name = filepath.Ext(output)
	}
	if name == "" {
		name = string(formatter.FormatCSV)
	}
	format, err := formatter.ParseFormat(name)
	if err != nil {
		return err
	}

	runs, err := r.listRuns(ctx, cmd)
	if err != nil {
		return err
	}
	if output == "" {
		output = "runs." + string(format)
	}

	path, err := formatter.WriteExport(runs, format, r.abs(output))
	if err != nil {
		return err
	}
	r.writePlain("✓ Exported %d runs to %s\n", len(runs), relativeTo(r.workDir, path))
	return nil
}

// HistoryShow prints one run with its steps. IDs may be abbreviated to the
// prefix shown by the history listing.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.runRepository()
	if err != nil {
		return err
	}
	defer closeDB()

	run, err := r.findRun(ctx, repo, cmd.Args().First())
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(newRunView(run), true)
	}

	r.writePlainHeader(fmt.Sprintf("%s  %s", run.Task(), run.ID()))
	r.writePlain("Status:     %s\n", renderStatus(run.Status(), 0))
	r.writePlain("Cause:      %s\n", run.Cause())
	r.writePlain("Production: %v\n", run.Production())
	r.writePlain("Started:    %s\n", run.StartedAt().Local().Format(time.DateTime))
	if d := run.Duration(); d > 0 {
		r.writePlain("Duration:   %s\n", formatDuration(d))
	}
	if steps := run.Steps(); len(steps) > 0 {
		r.writePlain("\nSteps:\n")
		for _, s := range steps {
			r.writePlain("  %d. %s\n", s.Position+1, s.Message)
		}
	}
	if text := run.ErrorText(); text != "" {
		r.writePlain("\n%s\n%s\n", styles.fail.Render("Error:"), text)
	}
	return nil
}

// HistoryDelete removes a recorded run.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.runRepository()
	if err != nil {
		return err
	}
	defer closeDB()

	run, err := r.findRun(ctx, repo, cmd.Args().First())
	if err != nil {
		return err
	}
	if err := repo.Delete(ctx, run.ID()); err != nil {
		return err
	}
	r.writePlain("Deleted run %s\n", run.ID())
	return nil
}

func (r *Runner) findRun(ctx context.Context, repo models.RunStore, id string) (*models.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}
	if run, err := repo.Get(ctx, id); err == nil {
		return run, nil
	}

	runs, err := repo.List(ctx, models.Filter{})
	if err != nil {
		return nil, err
	}
	var match *models.Run
	for _, run := range runs {
		if !strings.HasPrefix(run.ID(), id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: run id %q is ambiguous", shared.ErrInvalidArgument, id)
		}
		match = run
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	return repo.Get(ctx, match.ID())
}

func renderStatus(s models.Status, width int) string {
	text := fmt.Sprintf("%-*s", width, s)
	switch s {
	case models.StatusSucceeded:
		return styles.ok.Render(text)
	case models.StatusFailed:
		return styles.fail.Render(text)
	case models.StatusRunning:
		return styles.warn.Render(text)
	default:
		return styles.muted.Render(text)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
