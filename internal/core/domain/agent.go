package domain

import (
	"context"
	"time"
)

// AgentStatus tags the state of one bounded agent task execution.
type AgentStatus string

const (
	AgentStatusInitialized      AgentStatus = "INITIALIZED"
	AgentStatusStepping         AgentStatus = "STEPPING"
	AgentStatusCompleted        AgentStatus = "COMPLETED"
	AgentStatusFailed           AgentStatus = "FAILED"
	AgentStatusTimedOut         AgentStatus = "TIMED_OUT"
	AgentStatusStepLimitReached AgentStatus = "STEP_LIMIT_REACHED"
)

// Terminal reports whether the agent loop has halted.
func (s AgentStatus) Terminal() bool {
	switch s {
	case AgentStatusCompleted, AgentStatusFailed, AgentStatusTimedOut, AgentStatusStepLimitReached:
		return true
	}
	return false
}

// Decision is the planner's structured output for one step.
type Decision struct {
	Action     string         `json:"action"`
	Input      map[string]any `json:"input,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
	NextAction string         `json:"next_action,omitempty"`
	// Complete signals the task is done; FinalAnswer carries the result.
	Complete    bool   `json:"complete,omitempty"`
	FinalAnswer string `json:"final_answer,omitempty"`
}

// ExecutionStep is one immutable entry in the agent's step history.
type ExecutionStep struct {
	StepNumber int            `json:"step_number"`
	Action     string         `json:"action"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
	NextAction string         `json:"next_action,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AgentState is the mutable working state of one running agent task.
// Owned exclusively by the engine instance executing the task.
type AgentState struct {
	Task      string          `json:"task"`
	Status    AgentStatus     `json:"status"`
	Steps     []ExecutionStep `json:"steps"`
	Scratch   map[string]any  `json:"scratch,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	StepCount int             `json:"step_count"`
}

// ExecutionSummary is the full audit trace of one agent task, returned
// regardless of how the task ended.
type ExecutionSummary struct {
	ExecutionID string          `json:"execution_id"`
	Task        string          `json:"task"`
	Status      AgentStatus     `json:"status"`
	StepsTaken  int             `json:"steps_taken"`
	Elapsed     time.Duration   `json:"elapsed"`
	Error       string          `json:"error,omitempty"`
	Result      string          `json:"result,omitempty"`
	Steps       []ExecutionStep `json:"steps"`
	StartedAt   time.Time       `json:"started_at"`
}

// Planner produces the next step decision from the current state and the
// documentation of the allowed command set. The engine is agnostic to how
// the decision is made — LLM call, rule table, or test stub.
type Planner interface {
	PlanStep(ctx context.Context, state *AgentState, commandDocs string) (*Decision, error)
}
