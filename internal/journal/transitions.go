package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/contractor/internal/usage"
)

// RecordTransition appends a task status change to the audit trail.
func (s *SQLiteStore) RecordTransition(ctx context.Context, tr Transition) error {
	if tr.At.IsZero() {
		tr.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (run_id, task_id, from_status, to_status, reason, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tr.RunID, tr.TaskID, tr.From, tr.To, tr.Reason, tr.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// ListTransitions returns the transitions of a run in the order they were
// recorded. An empty taskID lists every task.
func (s *SQLiteStore) ListTransitions(ctx context.Context, runID, taskID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, run_id, task_id, from_status, to_status, reason, at
		FROM transitions
		WHERE run_id = ? AND (? = '' OR task_id = ?)
		ORDER BY seq ASC
	`, runID, taskID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		if err := rows.Scan(&tr.Seq, &tr.RunID, &tr.TaskID, &tr.From, &tr.To, &tr.Reason, &tr.At); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}
	return out, nil
}

// RecordUsage appends the usage a task consumed.
func (s *SQLiteStore) RecordUsage(ctx context.Context, runID, taskID, agent string, u usage.Usage) error {
	total := u.Total
	if total == 0 {
		total = u.Input + u.Output
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (run_id, task_id, agent, input_tokens, output_tokens, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, taskID, agent, u.Input, u.Output, total)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// UsageTotals sums the usage recorded for a run.
func (s *SQLiteStore) UsageTotals(ctx context.Context, runID string) (usage.Usage, error) {
	var u usage.Usage
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		FROM usage
		WHERE run_id = ?
	`, runID).Scan(&u.Input, &u.Output, &u.Total)
	if err != nil {
		return usage.Usage{}, fmt.Errorf("failed to sum usage: %w", err)
	}
	return u, nil
}
