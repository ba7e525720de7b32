package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveRun inserts or updates a run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, project_type, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_type = excluded.project_type,
			description = excluded.description,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, run.ID, run.ProjectType, run.Description, run.Status, run.CreatedAt.UTC(), now)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_type, description, status, created_at, updated_at
		FROM runs
		WHERE id = ?
	`, runID).Scan(&run.ID, &run.ProjectType, &run.Description, &run.Status, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// UpdateRunStatus sets the run's project status.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID, status string) error {
	return s.execOne(ctx, "run "+runID, `
		UPDATE runs SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), runID)
}

// SaveTask saves or updates a task and replaces its dependency list.
func (s *SQLiteStore) SaveTask(ctx context.Context, task TaskRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (run_id, id, agent, description, phase, status, skipped, result, error, failure_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(run_id, id) DO UPDATE SET
			agent = excluded.agent,
			description = excluded.description,
			phase = excluded.phase,
			status = excluded.status,
			skipped = excluded.skipped,
			result = excluded.result,
			error = excluded.error,
			failure_reason = excluded.failure_reason,
			updated_at = CURRENT_TIMESTAMP
	`, task.RunID, task.ID, task.Agent, task.Description, task.Phase, task.Status, task.Skipped, task.Result, task.Error, task.FailureReason)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE run_id = ? AND task_id = ?`, task.RunID, task.ID); err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}
	for _, depID := range task.DependsOn {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO task_dependencies (run_id, task_id, depends_on_id)
			VALUES (?, ?, ?)
		`, task.RunID, task.ID, depID)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", task.ID, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTask retrieves a task of a run, including its dependencies.
func (s *SQLiteStore) GetTask(ctx context.Context, runID, taskID string) (TaskRecord, error) {
	task := TaskRecord{RunID: runID}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent, description, phase, status, skipped, result, error, failure_reason
		FROM tasks
		WHERE run_id = ? AND id = ?
	`, runID, taskID).Scan(&task.ID, &task.Agent, &task.Description, &task.Phase, &task.Status,
		&task.Skipped, &task.Result, &task.Error, &task.FailureReason)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskRecord{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return TaskRecord{}, fmt.Errorf("failed to query task: %w", err)
	}

	deps, err := s.dependencies(ctx, runID, taskID)
	if err != nil {
		return TaskRecord{}, err
	}
	task.DependsOn = deps
	return task, nil
}

// ListTasks returns every task of a run ordered by ID.
func (s *SQLiteStore) ListTasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, description, phase, status, skipped, result, error, failure_reason
		FROM tasks
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []TaskRecord
	for rows.Next() {
		task := TaskRecord{RunID: runID}
		if err := rows.Scan(&task.ID, &task.Agent, &task.Description, &task.Phase, &task.Status,
			&task.Skipped, &task.Result, &task.Error, &task.FailureReason); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	// Close before the dependency queries; the pool holds a single connection.
	rows.Close()

	for i := range tasks {
		deps, err := s.dependencies(ctx, runID, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].DependsOn = deps
	}
	return tasks, nil
}

func (s *SQLiteStore) dependencies(ctx context.Context, runID, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT depends_on_id
		FROM task_dependencies
		WHERE run_id = ? AND task_id = ?
		ORDER BY depends_on_id
	`, runID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	var deps []string
	for rows.Next() {
		var depID string
		if err := rows.Scan(&depID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps = append(deps, depID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}
	return deps, nil
}

// UpdateTaskStatus records a task's new status. Leaving a failed state
// clears the stored error.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, runID, taskID, status string, skipped bool) error {
	return s.execOne(ctx, "task "+taskID, `
		UPDATE tasks
		SET status = ?,
			skipped = ?,
			error = CASE WHEN ? = 'failed' THEN error ELSE '' END,
			failure_reason = CASE WHEN ? = 'failed' THEN failure_reason ELSE '' END,
			updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ? AND id = ?
	`, status, skipped, status, status, runID, taskID)
}

// SetTaskResult stores the output of a completed task.
func (s *SQLiteStore) SetTaskResult(ctx context.Context, runID, taskID, result string) error {
	return s.execOne(ctx, "task "+taskID, `
		UPDATE tasks SET result = ?, updated_at = CURRENT_TIMESTAMP WHERE run_id = ? AND id = ?
	`, result, runID, taskID)
}

// SetTaskFailure stores why a task failed.
func (s *SQLiteStore) SetTaskFailure(ctx context.Context, runID, taskID, reason, msg string) error {
	return s.execOne(ctx, "task "+taskID, `
		UPDATE tasks
		SET failure_reason = ?, error = ?, result = '', updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ? AND id = ?
	`, reason, msg, runID, taskID)
}

// ResetTasks returns every task of a run to pending. The transition history
// is kept.
func (s *SQLiteStore) ResetTasks(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'pending', skipped = 0, result = '', error = '', failure_reason = '',
			updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ?
	`, runID)
	if err != nil {
		return fmt.Errorf("failed to reset tasks: %w", err)
	}
	return nil
}

// execOne runs an update that must touch exactly one row.
func (s *SQLiteStore) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
