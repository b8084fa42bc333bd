package ports

import (
	"context"
	"time"

	"github.com/wardenhq/warden/internal/core/domain"
)

// Repository abstracts the persistent store (DuckDB). Services depend on
// their own narrow slices of this; the adapter implements the union.
type Repository interface {
	// Jobs
	SaveJob(ctx context.Context, rec domain.JobRecord) error
	GetJob(ctx context.Context, id domain.JobID) (domain.JobRecord, error)
	ListJobs(ctx context.Context) ([]domain.JobRecord, error)
	ListJobsByStatus(ctx context.Context, statuses []domain.JobStatus) ([]domain.JobRecord, error)

	// Scheduler
	GetEntryLastRun(ctx context.Context, name string) (*time.Time, error)
	SaveEntryLastRun(ctx context.Context, name string, lastRun time.Time) error

	// Agent runs
	SaveAgentRun(ctx context.Context, summary domain.ExecutionSummary) error
	GetAgentRun(ctx context.Context, executionID string) (domain.ExecutionSummary, error)
	ListAgentRuns(ctx context.Context, limit int) ([]domain.ExecutionSummary, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error

	Close() error
}
