package llm

import "context"

// Provider abstracts the text-generation backend consumed by the
// planner. Implementations are plain HTTP clients; no SDK needed for
// the two wire formats in use.
type Provider interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}
