package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/wardenhq/warden/internal/core/domain"
)

// JobRepository is the persistence surface the manager needs. Terminal
// records must survive restarts; everything else is best-effort.
type JobRepository interface {
	SaveJob(ctx context.Context, rec domain.JobRecord) error
	GetJob(ctx context.Context, id domain.JobID) (domain.JobRecord, error)
	ListJobs(ctx context.Context) ([]domain.JobRecord, error)
	ListJobsByStatus(ctx context.Context, statuses []domain.JobStatus) ([]domain.JobRecord, error)
}

// JobManagerConfig bounds the concurrent job pool and the cancellation
// grace period.
type JobManagerConfig struct {
	MaxConcurrentJobs int64
	CancelGracePeriod time.Duration
}

// JobFilter narrows List results. Zero values match everything.
type JobFilter struct {
	Status domain.JobStatus
	Type   string
}

type jobEntry struct {
	record  domain.JobRecord
	job     domain.Job
	cancel  context.CancelFunc
	done    chan struct{}
	outputs []string

	// Persistence ordering: seq is bumped (under the manager lock) on
	// every record mutation; persistMu serializes the writes and
	// persistedSeq drops any write that lost the race to a newer one,
	// so a RUNNING save can never land over a terminal save.
	seq          uint64
	persistMu    sync.Mutex
	persistedSeq uint64
}

// JobManager owns the full job lifecycle: submission, concurrent
// execution, cooperative cancellation, and terminal-state persistence.
// Each job's state is mutated only by its own run goroutine and the
// manager's guarded transitions.
type JobManager struct {
	logger *slog.Logger
	repo   JobRepository
	sem    *semaphore.Weighted
	grace  time.Duration

	mu   sync.RWMutex
	jobs map[domain.JobID]*jobEntry
}

func NewJobManager(logger *slog.Logger, repo JobRepository, cfg JobManagerConfig) *JobManager {
	limit := cfg.MaxConcurrentJobs
	if limit <= 0 {
		limit = 10
	}
	grace := cfg.CancelGracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &JobManager{
		logger: logger,
		repo:   repo,
		sem:    semaphore.NewWeighted(limit),
		grace:  grace,
		jobs:   make(map[domain.JobID]*jobEntry),
	}
}

// Submit stores the job at PENDING, schedules its run body, and returns
// the assigned identifier immediately. Never blocks on job completion.
func (m *JobManager) Submit(ctx context.Context, job domain.Job) (domain.JobID, error) {
	id := domain.JobID(uuid.NewString())
	rec := domain.JobRecord{
		ID:        id,
		Type:      job.Type(),
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	// The run outlives the submitting request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	entry := &jobEntry{
		record: rec,
		job:    job,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[id] = entry
	entry.seq++
	seq := entry.seq
	m.mu.Unlock()

	m.persistEntry(entry, rec, seq)
	m.logger.Info("job submitted", "job_id", id, "type", rec.Type)

	go m.run(runCtx, entry)
	return id, nil
}

func (m *JobManager) run(ctx context.Context, entry *jobEntry) {
	defer close(entry.done)

	if err := m.sem.Acquire(ctx, 1); err != nil {
		// Cancelled while still queued. Cancel owns the transition.
		return
	}
	defer m.sem.Release(1)

	if !m.transition(entry, domain.JobStatusRunning) {
		return
	}

	result, err := m.invoke(ctx, entry)
	switch {
	case err != nil && ctx.Err() != nil:
		// Cancellation in flight; Cancel owns the CANCELLED transition.
	case err != nil:
		m.fail(entry, err.Error())
	case result == nil:
		m.fail(entry, "run body returned no result")
	default:
		m.complete(entry, result)
	}
}

// invoke runs the job body, converting a panic into an error so a run
// body that throws can never leave the job non-terminal.
func (m *JobManager) invoke(ctx context.Context, entry *jobEntry) (result *domain.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job run body panicked: %v", r)
		}
	}()

	progress := func(line string) {
		m.mu.Lock()
		entry.outputs = append(entry.outputs, line)
		m.mu.Unlock()
	}
	return entry.job.Run(ctx, progress)
}

// Cancel stops a PENDING or RUNNING job. A queued job transitions
// straight to CANCELLED; a running one gets its cleanup hook and at most
// the grace period before the transition happens anyway.
func (m *JobManager) Cancel(ctx context.Context, id domain.JobID) error {
	m.mu.Lock()
	entry, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	status := entry.record.Status
	if status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, id, status)
	}

	if status == domain.JobStatusPending {
		m.setTerminalLocked(entry, domain.JobStatusCancelled, "cancelled before start", nil)
		m.mu.Unlock()
		entry.cancel()
		m.logger.Info("pending job cancelled", "job_id", id)
		return nil
	}
	m.mu.Unlock()

	entry.cancel()

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), m.grace)
	defer stopCancel()
	stopped := make(chan error, 1)
	go func() { stopped <- entry.job.Stop(stopCtx) }()
	select {
	case err := <-stopped:
		if err != nil {
			m.logger.Error("job cleanup failed", "job_id", id, "error", err)
		}
	case <-stopCtx.Done():
		m.logger.Warn("job cleanup exceeded grace period", "job_id", id, "grace", m.grace)
	}

	m.mu.Lock()
	if !entry.record.Status.Terminal() {
		m.setTerminalLocked(entry, domain.JobStatusCancelled, "cancelled", nil)
	}
	m.mu.Unlock()
	m.logger.Info("job cancelled", "job_id", id)
	return nil
}

// Get returns a snapshot of the job's current record. Jobs from a
// previous process live only in the repository; a memory miss falls
// back there so terminal results stay reachable across restarts.
func (m *JobManager) Get(ctx context.Context, id domain.JobID) (domain.JobRecord, error) {
	m.mu.RLock()
	entry, ok := m.jobs[id]
	m.mu.RUnlock()
	if ok {
		return entry.record, nil
	}
	if m.repo != nil {
		return m.repo.GetJob(ctx, id)
	}
	return domain.JobRecord{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
}

// List returns snapshots of all jobs matching the filter, newest first.
// Persisted jobs from earlier runs are merged in; in-memory records win
// on ID collisions since they are at least as fresh.
func (m *JobManager) List(ctx context.Context, filter JobFilter) []domain.JobRecord {
	m.mu.RLock()
	inMemory := make(map[domain.JobID]struct{}, len(m.jobs))
	records := make([]domain.JobRecord, 0, len(m.jobs))
	for id, entry := range m.jobs {
		inMemory[id] = struct{}{}
		if matchesFilter(entry.record, filter) {
			records = append(records, entry.record)
		}
	}
	m.mu.RUnlock()

	if m.repo != nil {
		persisted, err := m.repo.ListJobs(ctx)
		if err != nil {
			m.logger.Error("failed to list persisted jobs", "error", err)
		}
		for _, rec := range persisted {
			if _, ok := inMemory[rec.ID]; ok {
				continue
			}
			if matchesFilter(rec, filter) {
				records = append(records, rec)
			}
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records
}

func matchesFilter(rec domain.JobRecord, filter JobFilter) bool {
	if filter.Status != "" && rec.Status != filter.Status {
		return false
	}
	if filter.Type != "" && rec.Type != filter.Type {
		return false
	}
	return true
}

// Wait blocks until the job's run goroutine has finished or the context
// is done.
func (m *JobManager) Wait(ctx context.Context, id domain.JobID) error {
	m.mu.RLock()
	entry, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	select {
	case <-entry.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecoverInterrupted marks jobs left PENDING or RUNNING by an unclean
// shutdown as FAILED: their run bodies no longer exist to resume them.
func (m *JobManager) RecoverInterrupted(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	stale, err := m.repo.ListJobsByStatus(ctx, []domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning})
	if err != nil {
		return fmt.Errorf("list interrupted jobs: %w", err)
	}
	for _, rec := range stale {
		rec.Status = domain.JobStatusFailed
		rec.Error = "interrupted by unclean shutdown, marked failed on recovery"
		now := time.Now().UTC()
		rec.CompletedAt = &now
		if err := m.repo.SaveJob(ctx, rec); err != nil {
			m.logger.Error("failed to persist recovered job", "job_id", rec.ID, "error", err)
			continue
		}
		m.logger.Warn("recovered interrupted job", "job_id", rec.ID, "type", rec.Type)
	}
	return nil
}

func (m *JobManager) complete(entry *jobEntry, result *domain.JobResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !entry.record.Status.CanTransition(domain.JobStatusCompleted) {
		m.logger.Warn("dropping result for job no longer running",
			"job_id", entry.record.ID, "status", entry.record.Status)
		return
	}
	result.Outputs = append(entry.outputs, result.Outputs...)
	m.setTerminalLocked(entry, domain.JobStatusCompleted, "", result)
	m.logger.Info("job completed", "job_id", entry.record.ID)
}

func (m *JobManager) fail(entry *jobEntry, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !entry.record.Status.CanTransition(domain.JobStatusFailed) {
		return
	}
	result := domain.NewJobResult(false, message)
	result.Outputs = entry.outputs
	m.setTerminalLocked(entry, domain.JobStatusFailed, message, result)
	m.logger.Error("job failed", "job_id", entry.record.ID, "error", message)
}

func (m *JobManager) transition(entry *jobEntry, to domain.JobStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !entry.record.Status.CanTransition(to) {
		return false
	}
	entry.record.Status = to
	if to == domain.JobStatusRunning {
		now := time.Now().UTC()
		entry.record.StartedAt = &now
	}
	rec := entry.record
	entry.seq++
	seq := entry.seq
	go m.persistEntry(entry, rec, seq)
	return true
}

// setTerminalLocked finalises the record. Caller holds m.mu.
func (m *JobManager) setTerminalLocked(entry *jobEntry, to domain.JobStatus, errMsg string, result *domain.JobResult) {
	entry.record.Status = to
	entry.record.Error = errMsg
	if result != nil {
		entry.record.Result = result
	}
	now := time.Now().UTC()
	entry.record.CompletedAt = &now
	rec := entry.record
	entry.seq++
	seq := entry.seq
	go m.persistEntry(entry, rec, seq)
}

// persistEntry writes one record snapshot, serialized per job. A write
// whose sequence is older than the last persisted one is dropped, so
// out-of-order goroutines cannot overwrite a terminal state.
func (m *JobManager) persistEntry(entry *jobEntry, rec domain.JobRecord, seq uint64) {
	if m.repo == nil {
		return
	}
	entry.persistMu.Lock()
	defer entry.persistMu.Unlock()
	if seq <= entry.persistedSeq {
		return
	}
	if err := m.repo.SaveJob(context.Background(), rec); err != nil {
		m.logger.Error("failed to persist job", "job_id", rec.ID, "status", rec.Status, "error", err)
		return
	}
	entry.persistedSeq = seq
}
