package ports

import "context"

// Contract for an external large-language-model service.
type TextGenerator interface {
	// Return the model's completion for a system instruction and user prompt.
	Generate(ctx context.Context, system string, prompt string) (string, error)
}
