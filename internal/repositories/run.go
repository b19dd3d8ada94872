package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/bundlex/internal/models"
	"github.com/desertthunder/bundlex/internal/shared"
)

// RunRepository implements [models.RunStore] on SQLite.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new [RunRepository] with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun inserts a run and its steps as it begins, generating an ID when the run has none.
func (r *RunRepository) StartRun(ctx context.Context, run *models.Run) error {
	if run.ID() == "" {
		run.SetID(shared.GenerateID())
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO runs (id, task, cause, status, error, production, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		run.ID(), run.Task(), run.Cause(), string(run.Status()), run.ErrorText(),
		run.Production(), run.StartedAt(), nullTime(run.FinishedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if err := insertSteps(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit()
}

// Get retrieves a run and its steps by ID
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT id, task, cause, status, error, production, started_at, finished_at
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	if err := r.loadSteps(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun stores the outcome of a run once its pipeline is done and replaces its steps.
func (r *RunRepository) FinishRun(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE runs
		SET status = ?, error = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := tx.ExecContext(ctx, query, string(run.Status()), run.ErrorText(), nullTime(run.FinishedAt()), run.ID())
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, run.ID())
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM steps WHERE run_id = ?", run.ID()); err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}
	if err := insertSteps(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a run; its steps cascade
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	return nil
}

// List returns the runs matching filter, newest first. Steps are not loaded.
func (r *RunRepository) List(ctx context.Context, filter models.Filter) ([]*models.Run, error) {
	var (
		where []string
		args  []any
	)

	if filter.Task != "" {
		where = append(where, "task = ?")
		args = append(args, filter.Task)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT id, task, cause, status, error, production, started_at, finished_at FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Latest returns the most recent run of task.
func (r *RunRepository) Latest(ctx context.Context, task string) (*models.Run, error) {
	runs, err := r.List(ctx, models.Filter{Task: task, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no runs for task %s", shared.ErrRunNotFound, task)
	}
	if err := r.loadSteps(ctx, runs[0]); err != nil {
		return nil, err
	}
	return runs[0], nil
}

func (r *RunRepository) loadSteps(ctx context.Context, run *models.Run) error {
	rows, err := r.db.QueryContext(ctx, "SELECT position, message, recorded_at FROM steps WHERE run_id = ? ORDER BY position", run.ID())
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []models.Step
	for rows.Next() {
		var s models.Step
		if err := rows.Scan(&s.Position, &s.Message, &s.RecordedAt); err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	run.SetSteps(steps)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		id, task, cause, status, errText string
		production                       bool
		startedAt                        time.Time
		finishedAt                       sql.NullTime
	)

	if err := row.Scan(&id, &task, &cause, &status, &errText, &production, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	run := models.NewRun(task, cause, production)
	run.SetID(id)
	run.SetStartedAt(startedAt)

	var finished *time.Time
	if finishedAt.Valid {
		finished = &finishedAt.Time
	}
	run.Restore(models.Status(status), errText, finished)
	return run, nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, run *models.Run) error {
	for _, s := range run.Steps() {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO steps (run_id, position, message, recorded_at) VALUES (?, ?, ?, ?)",
			run.ID(), s.Position, s.Message, s.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step: %w", err)
		}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ models.RunStore = (*RunRepository)(nil)
