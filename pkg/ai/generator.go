package ai

import "context"

// TextGenerator performs a single-turn text completion against a hosted model.
// Providers apply their own fixed sampling parameters; no streaming, no
// retries.
type TextGenerator interface {
	GenerateText(ctx context.Context, userPrompt string) (string, error)
}
