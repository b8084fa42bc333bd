package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wardenhq/warden/internal/core/domain"
)

// ScheduleRepository persists per-entry last-run timestamps so enabled
// entries resume their cadence across restarts.
type ScheduleRepository interface {
	GetEntryLastRun(ctx context.Context, name string) (*time.Time, error)
	SaveEntryLastRun(ctx context.Context, name string, lastRun time.Time) error
}

type entryState struct {
	entry     domain.ScheduledEntry
	schedule  cron.Schedule // non-nil when CronExpr is set
	running   bool
	lastJobID domain.JobID
}

// Scheduler re-invokes configured actions on their own cadence. The tick
// loop polls every few seconds; an entry fires when its interval (or
// cron schedule) has elapsed since its last run, and is skipped while a
// previous invocation of the same entry is still in flight.
type Scheduler struct {
	logger  *slog.Logger
	actions *domain.ActionRegistry
	jobs    *JobManager
	repo    ScheduleRepository
	tick    time.Duration

	mu      sync.RWMutex
	entries map[string]*entryState
	order   []string
}

func NewScheduler(logger *slog.Logger, actions *domain.ActionRegistry, jobs *JobManager, repo ScheduleRepository) *Scheduler {
	return &Scheduler{
		logger:  logger,
		actions: actions,
		jobs:    jobs,
		repo:    repo,
		tick:    5 * time.Second,
		entries: make(map[string]*entryState),
	}
}

// LoadEntries installs the configured entries. An entry referencing an
// unknown action or carrying a bad cron expression is logged and
// skipped; the rest still load. Persisted last-run timestamps are
// restored when a repository is present.
func (s *Scheduler) LoadEntries(ctx context.Context, entries []domain.ScheduledEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		if _, ok := s.actions.Get(entry.Command); !ok {
			s.logger.Error("cannot schedule unknown action", "entry", entry.Name, "command", entry.Command)
			continue
		}
		state := &entryState{entry: entry}
		if entry.CronExpr != "" {
			schedule, err := cron.ParseStandard(entry.CronExpr)
			if err != nil {
				s.logger.Error("invalid cron expression, skipping entry",
					"entry", entry.Name, "cron", entry.CronExpr, "error", err)
				continue
			}
			state.schedule = schedule
		} else if entry.IntervalMinutes <= 0 {
			s.logger.Error("entry has no interval or cron expression", "entry", entry.Name)
			continue
		}
		if s.repo != nil {
			if lastRun, err := s.repo.GetEntryLastRun(ctx, entry.Name); err == nil && lastRun != nil {
				state.entry.LastRun = lastRun
			}
		}
		s.entries[entry.Name] = state
		s.order = append(s.order, entry.Name)
		s.logger.Info("scheduled entry loaded", "entry", entry.Name,
			"command", entry.Command, "interval_minutes", entry.IntervalMinutes,
			"cron", entry.CronExpr, "enabled", entry.Enabled)
	}
}

// Run starts the tick loop. Blocks until ctx is cancelled. The host
// keeps this alive for the process lifetime.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "tick", s.tick)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case now := <-ticker.C:
			s.checkAndRun(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) checkAndRun(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*entryState, 0)
	for _, name := range s.order {
		state := s.entries[name]
		if !state.entry.Enabled || !s.isDueLocked(state, now) {
			continue
		}
		if s.inFlightLocked(ctx, state) {
			s.logger.Info("previous invocation still running, skipping tick", "entry", name)
			continue
		}
		// last_run moves on every fire, success or not, so a failing
		// action retries on its cadence instead of hot-looping.
		tickTime := now
		state.entry.LastRun = &tickTime
		state.running = true
		due = append(due, state)
	}
	s.mu.Unlock()

	for _, state := range due {
		go s.invoke(ctx, state, now)
	}
}

// isDueLocked reports whether the entry's cadence has elapsed. Never-run
// entries are immediately due.
func (s *Scheduler) isDueLocked(state *entryState, now time.Time) bool {
	lastRun := state.entry.LastRun
	if lastRun == nil {
		return true
	}
	if state.schedule != nil {
		return !state.schedule.Next(*lastRun).After(now)
	}
	return now.Sub(*lastRun) >= state.entry.Interval()
}

// inFlightLocked reports whether the entry's previous invocation has not
// completed: either the action call itself, or a job it submitted that
// is still PENDING or RUNNING.
func (s *Scheduler) inFlightLocked(ctx context.Context, state *entryState) bool {
	if state.running {
		return true
	}
	if state.lastJobID == "" {
		return false
	}
	rec, err := s.jobs.Get(ctx, state.lastJobID)
	if err != nil {
		return false
	}
	return !rec.Status.Terminal()
}

func (s *Scheduler) invoke(ctx context.Context, state *entryState, tickTime time.Time) {
	name := state.entry.Name
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled action panicked", "entry", name, "error", r)
		}
		s.mu.Lock()
		state.running = false
		s.mu.Unlock()
		// Persisted here so a panicking action still advances its cadence
		// instead of re-firing immediately after a restart.
		if s.repo != nil {
			if err := s.repo.SaveEntryLastRun(ctx, name, tickTime); err != nil {
				s.logger.Error("failed to persist last run", "entry", name, "error", err)
			}
		}
	}()

	s.logger.Info("invoking scheduled action", "entry", name, "command", state.entry.Command)
	result, err := s.actions.Execute(ctx, state.entry.Command, cloneArgs(state.entry.Args))

	s.mu.Lock()
	if err == nil && result.JobID != "" {
		state.lastJobID = domain.JobID(result.JobID)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled action failed", "entry", name, "error", err)
	} else if !result.Success {
		s.logger.Error("scheduled action returned failure", "entry", name, "error", result.Error)
	} else {
		s.logger.Info("scheduled action completed", "entry", name)
	}
}

// Enable turns an entry back on. Other entries are unaffected.
func (s *Scheduler) Enable(name string) error {
	return s.setEnabled(name, true)
}

// Disable stops future invocations of an entry. An in-flight invocation
// is left to finish.
func (s *Scheduler) Disable(name string) error {
	return s.setEnabled(name, false)
}

func (s *Scheduler) setEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrEntryNotFound, name)
	}
	state.entry.Enabled = enabled
	s.logger.Info("scheduled entry toggled", "entry", name, "enabled", enabled)
	return nil
}

// Status returns the read-only view of one entry.
func (s *Scheduler) Status(name string) (domain.ScheduledEntryStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.entries[name]
	if !ok {
		return domain.ScheduledEntryStatus{}, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, name)
	}
	return s.statusLocked(state), nil
}

// StatusAll returns the status of every entry in load order.
func (s *Scheduler) StatusAll() []domain.ScheduledEntryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScheduledEntryStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.statusLocked(s.entries[name]))
	}
	return out
}

func (s *Scheduler) statusLocked(state *entryState) domain.ScheduledEntryStatus {
	status := domain.ScheduledEntryStatus{
		Name:            state.entry.Name,
		Command:         state.entry.Command,
		IntervalMinutes: state.entry.IntervalMinutes,
		CronExpr:        state.entry.CronExpr,
		Enabled:         state.entry.Enabled,
		LastRun:         state.entry.LastRun,
		RunningJobID:    string(state.lastJobID),
	}
	if state.entry.LastRun != nil {
		var next time.Time
		if state.schedule != nil {
			next = state.schedule.Next(*state.entry.LastRun)
		} else {
			next = state.entry.LastRun.Add(state.entry.Interval())
		}
		status.NextRun = &next
	}
	return status
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
