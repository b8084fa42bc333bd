package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/wardenhq/warden/internal/core/ports"
)

// Repository is the DuckDB-backed persistence adapter.
type Repository struct {
	db *sql.DB
}

var _ ports.Repository = (*Repository)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id VARCHAR PRIMARY KEY,
	type VARCHAR NOT NULL,
	status VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	completed_at TIMESTAMP,
	error VARCHAR,
	result VARCHAR
);
CREATE TABLE IF NOT EXISTS schedule_runs (
	name VARCHAR PRIMARY KEY,
	last_run TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS agent_runs (
	execution_id VARCHAR PRIMARY KEY,
	task VARCHAR NOT NULL,
	status VARCHAR NOT NULL,
	steps_taken INTEGER NOT NULL,
	elapsed_ms BIGINT NOT NULL,
	error VARCHAR,
	result VARCHAR,
	steps VARCHAR,
	started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	key VARCHAR PRIMARY KEY,
	value VARCHAR NOT NULL
);
`

// NewRepository opens (or creates) the database at path and ensures the
// schema exists. An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting not found: %s", key)
	}
	return value, err
}

func (r *Repository) SaveSetting(ctx context.Context, key string, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
