package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/core/domain"
)

const jobColumns = `id, type, status, created_at, started_at, completed_at, error, result`

func (r *Repository) SaveJob(ctx context.Context, rec domain.JobRecord) error {
	var resultJSON *string
	if rec.Result != nil {
		data, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("marshal job result: %w", err)
		}
		s := string(data)
		resultJSON = &s
	}

	query := `
	INSERT INTO jobs (` + jobColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		started_at = excluded.started_at,
		completed_at = excluded.completed_at,
		error = excluded.error,
		result = excluded.result;
	`
	_, err := r.db.ExecContext(ctx, query,
		string(rec.ID), rec.Type, string(rec.Status),
		rec.CreatedAt, rec.StartedAt, rec.CompletedAt,
		rec.Error, resultJSON,
	)
	return err
}

func (r *Repository) GetJob(ctx context.Context, id domain.JobID) (domain.JobRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, string(id))
	rec, err := scanJob(row)
	if err == sql.ErrNoRows {
		return domain.JobRecord{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return rec, err
}

func (r *Repository) ListJobs(ctx context.Context) ([]domain.JobRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *Repository) ListJobsByStatus(ctx context.Context, statuses []domain.JobStatus) ([]domain.JobRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (`+placeholders+`) ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.JobRecord, error) {
	var rec domain.JobRecord
	var id, status string
	var startedAt, completedAt sql.NullTime
	var errMsg, resultJSON sql.NullString

	if err := row.Scan(&id, &rec.Type, &status, &rec.CreatedAt,
		&startedAt, &completedAt, &errMsg, &resultJSON); err != nil {
		return domain.JobRecord{}, err
	}

	rec.ID = domain.JobID(id)
	rec.Status = domain.JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	rec.Error = errMsg.String
	if resultJSON.Valid && resultJSON.String != "" {
		var result domain.JobResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return domain.JobRecord{}, fmt.Errorf("unmarshal job result: %w", err)
		}
		rec.Result = &result
	}
	return rec, nil
}

func scanJobs(rows *sql.Rows) ([]domain.JobRecord, error) {
	var records []domain.JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
