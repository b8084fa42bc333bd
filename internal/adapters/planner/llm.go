package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/wardenhq/warden/internal/adapters/llm"
	"github.com/wardenhq/warden/internal/core/domain"
)

// LLMPlanner produces step decisions by prompting a text-generation
// backend and parsing the JSON decision it returns.
type LLMPlanner struct {
	logger   *slog.Logger
	provider llm.Provider
}

var _ domain.Planner = (*LLMPlanner)(nil)

func NewLLMPlanner(logger *slog.Logger, provider llm.Provider) *LLMPlanner {
	return &LLMPlanner{logger: logger, provider: provider}
}

func (p *LLMPlanner) PlanStep(ctx context.Context, state *domain.AgentState, commandDocs string) (*domain.Decision, error) {
	prompt := p.buildPrompt(state, commandDocs)

	response, err := p.provider.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm generate: %w", err)
	}

	decision, err := parseDecision(response)
	if err != nil {
		p.logger.Warn("unparseable planner response", "response", truncate(response, 300), "error", err)
		return nil, err
	}
	return decision, nil
}

func (p *LLMPlanner) buildPrompt(state *domain.AgentState, commandDocs string) string {
	var b strings.Builder
	b.WriteString("You are an autonomous agent working on a task. ")
	b.WriteString("Commands are your only way to affect the world.\n\n")
	b.WriteString("Task: " + state.Task + "\n\n")
	b.WriteString(commandDocs + "\n")

	if len(state.Steps) > 0 {
		b.WriteString("Steps taken so far:\n")
		for _, step := range state.Steps {
			output, _ := json.Marshal(step.Output)
			fmt.Fprintf(&b, "%d. %s(%v) -> %s\n", step.StepNumber, step.Action, step.Input, truncate(string(output), 500))
		}
		b.WriteString("\n")
	}

	b.WriteString(`Respond with a single JSON object on one line:
{"action": "<command name>", "input": {<command arguments>}, "reasoning": "<why this step>", "next_action": "<what you expect to do next>", "complete": <true when the task is done>, "final_answer": "<result, only when complete>"}

RULES:
1. Use the EXACT command name from the list above. Do NOT invent commands.
2. When the task is done, set "complete": true and put the result in "final_answer"; "action" may be empty.
3. The input object must match the command's declared arguments.
`)
	return b.String()
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseDecision extracts the first JSON object from the response. Models
// routinely wrap the object in prose or code fences.
func parseDecision(response string) (*domain.Decision, error) {
	raw := jsonObjectRe.FindString(response)
	if raw == "" {
		return nil, fmt.Errorf("no JSON decision in planner response")
	}
	var decision domain.Decision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, fmt.Errorf("invalid JSON decision: %w", err)
	}
	if decision.Action == "" && !decision.Complete {
		return nil, fmt.Errorf("decision names no action and is not complete")
	}
	return &decision, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
