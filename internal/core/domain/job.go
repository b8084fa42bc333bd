package domain

import (
	"context"
	"time"
)

// JobID uniquely identifies a job. Assigned by the manager at submit time.
type JobID string

// JobStatus is the lifecycle state of a job. Transitions are monotonic:
// PENDING → RUNNING → {COMPLETED, FAILED, CANCELLED}, plus the direct
// PENDING → CANCELLED shortcut for jobs cancelled before they start.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving to the given status is legal.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobStatusPending:
		return to == JobStatusRunning || to == JobStatusCancelled || to == JobStatusFailed
	case JobStatusRunning:
		return to.Terminal()
	}
	return false
}

// JobResult is the outcome of a job run: a success flag, a message for
// humans, structured data, and the chronological output log accumulated
// while the job ran.
type JobResult struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Outputs   []string       `json:"outputs,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewJobResult creates a result with the creation timestamp set.
func NewJobResult(success bool, message string) *JobResult {
	return &JobResult{
		Success:   success,
		Message:   message,
		Data:      map[string]any{},
		CreatedAt: time.Now().UTC(),
	}
}

// AddOutput appends a line to the output log. Empty lines are dropped.
func (r *JobResult) AddOutput(line string) {
	if line != "" {
		r.Outputs = append(r.Outputs, line)
	}
}

// JobRecord is the persisted snapshot of a job's lifecycle.
type JobRecord struct {
	ID          JobID      `json:"id"`
	Type        string     `json:"type"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
}

// ProgressFunc receives output lines from a running job.
type ProgressFunc func(line string)

// Job is the contract extension authors implement for long-running work.
// Run must return the terminal result; an error return or a panic marks
// the job FAILED. Stop is the cooperative cleanup hook invoked on
// cancellation — run bodies are expected to honour ctx cancellation at
// their own I/O boundaries.
type Job interface {
	Type() string
	Run(ctx context.Context, progress ProgressFunc) (*JobResult, error)
	Stop(ctx context.Context) error
}
