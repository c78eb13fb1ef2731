package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient provides access to Gemini text generation.
type GeminiClient struct {
	backend
	client *genai.Client
}

// NewGeminiClient creates a Gemini API client. Endpoint is optional and overrides
// the API base URL.
func NewGeminiClient(ctx context.Context, cfg *Config, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.Endpoint
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		backend: backend{model: cfg.Model, endpoint: cfg.Endpoint, logger: logger.Named("llm.gemini")},
		client:  client,
	}, nil
}

// GenerateResponse generates content for prompt. thinking is ignored.
func (c *GeminiClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
	thinking bool,
) (*GenerateResponseResult, error) {
	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if systemMessage != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(systemMessage, genai.RoleUser)
	}

	start := c.sending(prompt, temperature)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), genConfig)
	if err != nil {
		return nil, c.failed(err, start)
	}

	content := resp.Text()
	if content == "" {
		return nil, c.empty("no text content in response")
	}

	result := &GenerateResponseResult{Content: content}
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		result.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return c.completed(result, start), nil
}
