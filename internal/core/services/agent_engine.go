package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/internal/core/domain"
)

// AgentRunStore persists execution summaries for audit.
type AgentRunStore interface {
	SaveAgentRun(ctx context.Context, summary domain.ExecutionSummary) error
}

// AgentEngineConfig bounds the loop. Zero values get the defaults.
type AgentEngineConfig struct {
	MaxSteps       int
	Timeout        time.Duration
	AllowedActions []string
}

// AgentEngine runs a bounded plan→execute→record loop. Actions are its
// only way to affect the world, restricted to the allowed command set;
// the planner is an injected strategy. Every task produces a full
// execution summary regardless of how it ends.
type AgentEngine struct {
	logger   *slog.Logger
	actions  *domain.ActionRegistry
	planner  domain.Planner
	store    AgentRunStore
	maxSteps int
	timeout  time.Duration
}

func NewAgentEngine(logger *slog.Logger, actions *domain.ActionRegistry, planner domain.Planner, store AgentRunStore, cfg AgentEngineConfig) *AgentEngine {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if len(cfg.AllowedActions) > 0 {
		actions = actions.FilterByNames(cfg.AllowedActions)
	}
	return &AgentEngine{
		logger:   logger,
		actions:  actions,
		planner:  planner,
		store:    store,
		maxSteps: maxSteps,
		timeout:  timeout,
	}
}

// ExecuteTask runs the loop for one task. The returned summary carries
// the step history accumulated so far even when the loop halts on a
// failure or a bound.
func (e *AgentEngine) ExecuteTask(ctx context.Context, task string) *domain.ExecutionSummary {
	executionID := uuid.NewString()
	startedAt := time.Now().UTC()
	deadline := startedAt.Add(e.timeout)

	state := &domain.AgentState{
		Task:      task,
		Status:    domain.AgentStatusInitialized,
		Scratch:   map[string]any{},
		StartedAt: startedAt,
	}
	commandDocs := e.actions.FormatForPrompt()

	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	e.logger.Info("agent task started", "execution_id", executionID, "task", task,
		"max_steps", e.maxSteps, "timeout", e.timeout)

	var taskErr string
	var finalResult string

	state.Status = domain.AgentStatusStepping
	for state.StepCount < e.maxSteps {
		if !time.Now().Before(deadline) {
			state.Status = domain.AgentStatusTimedOut
			taskErr = fmt.Sprintf("task timed out after %s", e.timeout)
			break
		}

		decision, err := e.planStep(runCtx, state, commandDocs)
		if err != nil {
			state.StepCount++
			e.recordStep(state, &domain.Decision{Action: "plan"}, map[string]any{"error": err.Error()})
			if e.deadlineHit(runCtx) {
				state.Status = domain.AgentStatusTimedOut
				taskErr = fmt.Sprintf("task timed out after %s", e.timeout)
			} else {
				state.Status = domain.AgentStatusFailed
				taskErr = fmt.Sprintf("planner failed: %v", err)
			}
			break
		}

		if decision.Complete && decision.Action == "" {
			state.Status = domain.AgentStatusCompleted
			finalResult = decision.FinalAnswer
			break
		}

		output, execErr := e.executeAction(runCtx, decision)
		state.StepCount++
		e.recordStep(state, decision, output)

		if execErr != nil {
			if e.deadlineHit(runCtx) {
				state.Status = domain.AgentStatusTimedOut
				taskErr = fmt.Sprintf("task timed out after %s", e.timeout)
			} else {
				state.Status = domain.AgentStatusFailed
				taskErr = execErr.Error()
			}
			break
		}
		if decision.Complete {
			state.Status = domain.AgentStatusCompleted
			finalResult = decision.FinalAnswer
			break
		}
	}

	if !state.Status.Terminal() {
		state.Status = domain.AgentStatusStepLimitReached
		taskErr = fmt.Sprintf("task exceeded maximum steps (%d)", e.maxSteps)
	}

	summary := &domain.ExecutionSummary{
		ExecutionID: executionID,
		Task:        task,
		Status:      state.Status,
		StepsTaken:  state.StepCount,
		Elapsed:     time.Since(startedAt),
		Error:       taskErr,
		Result:      finalResult,
		Steps:       state.Steps,
		StartedAt:   startedAt,
	}

	e.logger.Info("agent task finished", "execution_id", executionID,
		"status", summary.Status, "steps", summary.StepsTaken, "elapsed", summary.Elapsed)

	if e.store != nil {
		if err := e.store.SaveAgentRun(ctx, *summary); err != nil {
			e.logger.Error("failed to persist agent run", "execution_id", executionID, "error", err)
		}
	}
	return summary
}

// deadlineHit distinguishes the wall-clock bound expiring mid-step
// from an ordinary step failure, so the timeout status wins even when
// the error surfaced through the planner or an action.
func (e *AgentEngine) deadlineHit(runCtx context.Context) bool {
	return errors.Is(runCtx.Err(), context.DeadlineExceeded)
}

// planStep consults the planner, converting a panic into an error.
func (e *AgentEngine) planStep(ctx context.Context, state *domain.AgentState, commandDocs string) (decision *domain.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("planner panicked: %v", r)
		}
	}()
	decision, err = e.planner.PlanStep(ctx, state, commandDocs)
	if err == nil && decision == nil {
		err = fmt.Errorf("planner returned no decision")
	}
	return decision, err
}

// executeAction invokes the planned action. An action outside the
// allowed set is recorded as a failure without execution.
func (e *AgentEngine) executeAction(ctx context.Context, decision *domain.Decision) (map[string]any, error) {
	if _, ok := e.actions.Get(decision.Action); !ok {
		err := fmt.Errorf("%w: %s", domain.ErrActionNotAllowed, decision.Action)
		return map[string]any{"error": err.Error()}, err
	}

	result, err := e.invokeAction(ctx, decision)
	if err != nil {
		return map[string]any{"error": err.Error()}, fmt.Errorf("action %s failed: %w", decision.Action, err)
	}

	output := map[string]any{
		"success": result.Success,
		"type":    string(result.Type),
	}
	if result.Content != "" {
		output["content"] = result.Content
	}
	if len(result.Data) > 0 {
		output["data"] = result.Data
	}
	if result.JobID != "" {
		output["job_id"] = result.JobID
	}
	if result.Error != "" {
		output["error"] = result.Error
		return output, fmt.Errorf("action %s failed: %s", decision.Action, result.Error)
	}
	return output, nil
}

func (e *AgentEngine) invokeAction(ctx context.Context, decision *domain.Decision) (result domain.ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return e.actions.Execute(ctx, decision.Action, decision.Input)
}

func (e *AgentEngine) recordStep(state *domain.AgentState, decision *domain.Decision, output map[string]any) {
	step := domain.ExecutionStep{
		StepNumber: state.StepCount,
		Action:     decision.Action,
		Input:      decision.Input,
		Output:     output,
		Reasoning:  decision.Reasoning,
		NextAction: decision.NextAction,
		Timestamp:  time.Now().UTC(),
	}
	state.Steps = append(state.Steps, step)
	e.logger.Info("agent step recorded", "step", step.StepNumber,
		"action", step.Action, "reasoning", step.Reasoning)
}
