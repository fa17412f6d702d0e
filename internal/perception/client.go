package perception

import (
	"context"
	"errors"
)

// ErrAIService wraps every failure of the AI planning service.
var ErrAIService = errors.New("AI service error")

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("AI service not configured (set GEMINI_API_KEY)")

// LLMClient generates text for a prompt, optionally with an attached image.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, image *Image) (string, error)
}

// LLMClientFunc adapts a function to LLMClient.
type LLMClientFunc func(ctx context.Context, prompt string, image *Image) (string, error)

// Generate calls f.
func (f LLMClientFunc) Generate(ctx context.Context, prompt string, image *Image) (string, error) {
	return f(ctx, prompt, image)
}
