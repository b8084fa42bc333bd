package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/core/domain"
)

// Builtin actions every deployment gets: help, status, and job/scheduler
// control. Extensions add the domain-specific rest.

// NewHelpAction lists registered commands, or shows the detailed help of
// one command.
func NewHelpAction(registry *domain.ActionRegistry) *domain.Action {
	return &domain.Action{
		Spec: domain.ActionSpec{
			Name:        "help",
			Description: "Show available commands or detailed help for one command",
			AgentHint:   "Use to discover what commands exist and how to call them.",
			Arguments: []domain.ActionArgument{
				{Name: "command", Description: "Command to show help for", Type: domain.ArgString, Required: false},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			if name, _ := args["command"].(string); name != "" {
				action, ok := registry.Get(name)
				if !ok {
					return domain.ErrorResult(fmt.Errorf("%w: %s", domain.ErrActionNotFound, name)), nil
				}
				spec := action.Spec
				var b strings.Builder
				b.WriteString(spec.Name + " — " + spec.Description + "\n")
				if spec.HelpText != "" {
					b.WriteString("\n" + spec.HelpText + "\n")
				}
				for _, arg := range spec.Arguments {
					req := "optional"
					if arg.Required {
						req = "required"
					}
					b.WriteString(fmt.Sprintf("  %s (%s, %s): %s\n", arg.Name, arg.Type, req, arg.Description))
				}
				return domain.TextResult(b.String()), nil
			}

			items := make([]string, 0)
			for _, action := range registry.List() {
				items = append(items, action.Spec.Name+" — "+action.Spec.Description)
			}
			return domain.ListResult(items), nil
		},
	}
}

// NewStatusAction reports a system snapshot: job counts by status,
// scheduled entries, and the active extension set.
func NewStatusAction(jobs *JobManager, sched *Scheduler, extensions []string) *domain.Action {
	return &domain.Action{
		Spec: domain.ActionSpec{
			Name:        "status",
			Description: "Show system status information",
			AgentHint:   "Use to check running jobs, scheduled entries and active extensions.",
		},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			counts := map[string]int{}
			for _, rec := range jobs.List(ctx, JobFilter{}) {
				counts[string(rec.Status)]++
			}

			data := map[string]any{
				"jobs":              counts,
				"active_extensions": extensions,
			}
			if sched != nil {
				entries := sched.StatusAll()
				names := make([]string, 0, len(entries))
				for _, e := range entries {
					names = append(names, e.Name)
				}
				data["scheduled_entries"] = names
			}
			return domain.JSONResult(data), nil
		},
	}
}

// NewListJobsAction lists jobs, optionally filtered by status.
func NewListJobsAction(jobs *JobManager) *domain.Action {
	return &domain.Action{
		Spec: domain.ActionSpec{
			Name:        "list_jobs",
			Description: "List jobs tracked by the job manager",
			Arguments: []domain.ActionArgument{
				{
					Name: "status", Description: "Filter by job status", Type: domain.ArgString, Required: false,
					Choices: []any{"PENDING", "RUNNING", "COMPLETED", "FAILED", "CANCELLED"},
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			filter := JobFilter{}
			if status, _ := args["status"].(string); status != "" {
				filter.Status = domain.JobStatus(status)
			}
			records := jobs.List(ctx, filter)
			items := make([]string, 0, len(records))
			for _, rec := range records {
				items = append(items, fmt.Sprintf("Job %s (%s): %s", rec.ID, rec.Type, rec.Status))
			}
			return domain.ListResult(items), nil
		},
	}
}

// NewGetJobAction returns the details and result of one job.
func NewGetJobAction(jobs *JobManager) *domain.Action {
	return &domain.Action{
		Spec: domain.ActionSpec{
			Name:        "job",
			Description: "Get details of a specific job",
			Arguments: []domain.ActionArgument{
				{Name: "job_id", Description: "ID of the job", Type: domain.ArgString, Required: true},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			jobID, _ := args["job_id"].(string)
			rec, err := jobs.Get(ctx, domain.JobID(jobID))
			if err != nil {
				return domain.ErrorResult(err), nil
			}
			data := map[string]any{
				"id":         string(rec.ID),
				"type":       rec.Type,
				"status":     string(rec.Status),
				"created_at": rec.CreatedAt,
			}
			if rec.Error != "" {
				data["error"] = rec.Error
			}
			if rec.Result != nil {
				data["result"] = rec.Result
			}
			return domain.JSONResult(data), nil
		},
	}
}

// NewStopJobAction cancels a pending or running job.
func NewStopJobAction(jobs *JobManager) *domain.Action {
	return &domain.Action{
		Spec: domain.ActionSpec{
			Name:        "stop_job",
			Description: "Cancel a pending or running job",
			Arguments: []domain.ActionArgument{
				{Name: "job_id", Description: "ID of the job to cancel", Type: domain.ArgString, Required: true},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			jobID, _ := args["job_id"].(string)
			if err := jobs.Cancel(ctx, domain.JobID(jobID)); err != nil {
				return domain.ErrorResult(err), nil
			}
			return domain.TextResult(fmt.Sprintf("Job %s cancelled.", jobID)), nil
		},
	}
}

// NewSchedulerAction exposes scheduler status/enable/disable as a
// command, mirroring what the chat surface offers operators.
func NewSchedulerAction(sched *Scheduler) *domain.Action {
	return &domain.Action{
		Spec: domain.ActionSpec{
			Name:        "scheduler",
			Description: "Inspect or toggle scheduled entries",
			Arguments: []domain.ActionArgument{
				{
					Name: "operation", Description: "Operation to perform", Type: domain.ArgString,
					Required: false, Default: "status", Choices: []any{"status", "enable", "disable"},
				},
				{Name: "name", Description: "Entry name (required for enable/disable)", Type: domain.ArgString, Required: false},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			operation, _ := args["operation"].(string)
			name, _ := args["name"].(string)
			switch operation {
			case "enable":
				if err := sched.Enable(name); err != nil {
					return domain.ErrorResult(err), nil
				}
				return domain.TextResult(fmt.Sprintf("Enabled scheduled entry: %s", name)), nil
			case "disable":
				if err := sched.Disable(name); err != nil {
					return domain.ErrorResult(err), nil
				}
				return domain.TextResult(fmt.Sprintf("Disabled scheduled entry: %s", name)), nil
			default:
				if name != "" {
					status, err := sched.Status(name)
					if err != nil {
						return domain.ErrorResult(err), nil
					}
					return domain.JSONResult(entryStatusData(status)), nil
				}
				entries := sched.StatusAll()
				items := make([]string, 0, len(entries))
				for _, e := range entries {
					enabled := "disabled"
					if e.Enabled {
						enabled = "enabled"
					}
					items = append(items, fmt.Sprintf("%s (%s): %s", e.Name, enabled, e.Command))
				}
				return domain.ListResult(items), nil
			}
		},
	}
}

func entryStatusData(status domain.ScheduledEntryStatus) map[string]any {
	data := map[string]any{
		"name":             status.Name,
		"command":          status.Command,
		"interval_minutes": status.IntervalMinutes,
		"enabled":          status.Enabled,
	}
	if status.CronExpr != "" {
		data["cron"] = status.CronExpr
	}
	if status.LastRun != nil {
		data["last_run"] = status.LastRun
	}
	if status.NextRun != nil {
		data["next_run"] = status.NextRun
	}
	return data
}
