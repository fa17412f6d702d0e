package perception

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gridnerd/internal/logging"

	"google.golang.org/genai"
)

// =============================================================================
// GOOGLE GENAI PLANNING CLIENT
// =============================================================================

// GeminiConfig configures GeminiClient.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Timeout         time.Duration
	Temperature     float32
	MaxOutputTokens int32
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:          apiKey,
		Model:           "gemini-2.5-flash",
		Timeout:         120 * time.Second,
		Temperature:     0.2,
		MaxOutputTokens: 2048,
	}
}

// GeminiClient implements LLMClient with Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
	config GeminiConfig
}

// NewGeminiClient creates a Gemini client. The API key is required.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	defaults := DefaultGeminiConfig(cfg.APIKey)
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaults.MaxOutputTokens
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, config: cfg}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.config.Model }

// Generate sends the prompt, plus the image when present, and returns the response text.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, image *Image) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(image.Data, image.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	logging.APIDebug("generate: model=%s prompt_len=%d image=%v", c.config.Model, len(prompt), image != nil)

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.config.Temperature),
		MaxOutputTokens: c.config.MaxOutputTokens,
	})
	if err != nil {
		logging.APIError("generate failed after %v: %v", time.Since(start), err)
		return "", fmt.Errorf("%w: %v", ErrAIService, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response from %s", ErrAIService, c.config.Model)
	}

	logging.API("generate: model=%s response_len=%d duration=%v", c.config.Model, len(text), time.Since(start))
	return text, nil
}
