package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/core/domain"
)

func (r *Repository) SaveAgentRun(ctx context.Context, summary domain.ExecutionSummary) error {
	stepsJSON, err := json.Marshal(summary.Steps)
	if err != nil {
		return fmt.Errorf("marshal agent steps: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
	INSERT INTO agent_runs (execution_id, task, status, steps_taken, elapsed_ms, error, result, steps, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (execution_id) DO UPDATE SET
		status = excluded.status,
		steps_taken = excluded.steps_taken,
		elapsed_ms = excluded.elapsed_ms,
		error = excluded.error,
		result = excluded.result,
		steps = excluded.steps`,
		summary.ExecutionID, summary.Task, string(summary.Status),
		summary.StepsTaken, summary.Elapsed.Milliseconds(),
		summary.Error, summary.Result, string(stepsJSON), summary.StartedAt,
	)
	return err
}

func (r *Repository) GetAgentRun(ctx context.Context, executionID string) (domain.ExecutionSummary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT execution_id, task, status, steps_taken, elapsed_ms, error, result, steps, started_at
		FROM agent_runs WHERE execution_id = ?`, executionID)
	summary, err := scanAgentRun(row)
	if err == sql.ErrNoRows {
		return domain.ExecutionSummary{}, fmt.Errorf("agent run not found: %s", executionID)
	}
	return summary, err
}

func (r *Repository) ListAgentRuns(ctx context.Context, limit int) ([]domain.ExecutionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT execution_id, task, status, steps_taken, elapsed_ms, error, result, steps, started_at
		FROM agent_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.ExecutionSummary
	for rows.Next() {
		summary, err := scanAgentRun(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func scanAgentRun(row rowScanner) (domain.ExecutionSummary, error) {
	var summary domain.ExecutionSummary
	var status string
	var elapsedMs int64
	var errMsg, result, stepsJSON sql.NullString

	if err := row.Scan(&summary.ExecutionID, &summary.Task, &status,
		&summary.StepsTaken, &elapsedMs, &errMsg, &result, &stepsJSON,
		&summary.StartedAt); err != nil {
		return domain.ExecutionSummary{}, err
	}

	summary.Status = domain.AgentStatus(status)
	summary.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	summary.Error = errMsg.String
	summary.Result = result.String
	if stepsJSON.Valid && stepsJSON.String != "" {
		if err := json.Unmarshal([]byte(stepsJSON.String), &summary.Steps); err != nil {
			return domain.ExecutionSummary{}, fmt.Errorf("unmarshal agent steps: %w", err)
		}
	}
	return summary, nil
}
