package domain

import "context"

// Generator is the downstream response generation port. The pipeline
// invokes it only after the guardrail checks pass.
type Generator interface {
	Generate(ctx context.Context, text string) (GenerationResult, error)
}

// GenerationResult is the generated response plus provider metadata.
type GenerationResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}
