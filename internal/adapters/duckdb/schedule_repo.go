package duckdb

import (
	"context"
	"database/sql"
	"time"
)

func (r *Repository) GetEntryLastRun(ctx context.Context, name string) (*time.Time, error) {
	var lastRun time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT last_run FROM schedule_runs WHERE name = ?`, name).Scan(&lastRun)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lastRun, nil
}

func (r *Repository) SaveEntryLastRun(ctx context.Context, name string, lastRun time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedule_runs (name, last_run) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET last_run = excluded.last_run`,
		name, lastRun)
	return err
}
