package domain

import "time"

// ScheduledEntry causes periodic re-invocation of an action. Entries are
// loaded from configuration at startup; only the enabled flag and the
// last-run timestamp mutate afterwards.
type ScheduledEntry struct {
	Name            string         `json:"name" yaml:"name"`
	Command         string         `json:"command" yaml:"command"`
	Args            map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	IntervalMinutes int            `json:"interval_minutes" yaml:"interval_minutes"`
	// CronExpr, when set, takes precedence over IntervalMinutes.
	CronExpr string     `json:"cron,omitempty" yaml:"cron,omitempty"`
	Enabled  bool       `json:"enabled" yaml:"enabled"`
	LastRun  *time.Time `json:"last_run,omitempty" yaml:"-"`
}

// Interval returns the configured interval as a duration.
func (e ScheduledEntry) Interval() time.Duration {
	return time.Duration(e.IntervalMinutes) * time.Minute
}

// ScheduledEntryStatus is the read-only view returned by status queries.
type ScheduledEntryStatus struct {
	Name            string     `json:"name"`
	Command         string     `json:"command"`
	IntervalMinutes int        `json:"interval_minutes"`
	CronExpr        string     `json:"cron,omitempty"`
	Enabled         bool       `json:"enabled"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	NextRun         *time.Time `json:"next_run,omitempty"`
	RunningJobID    string     `json:"running_job_id,omitempty"`
}
