package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including local vLLM and Ollama servers.
type OpenAIClient struct {
	backend
	client *openai.Client
}

// NewOpenAIClient creates a client for cfg.Endpoint. The API key may be empty
// for local servers.
func NewOpenAIClient(cfg *Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	conf.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	if cfg.Timeout > 0 {
		conf.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAIClient{
		backend: backend{model: cfg.Model, endpoint: cfg.Endpoint, logger: logger.Named("llm.openai")},
		client:  openai.NewClientWithConfig(conf),
	}, nil
}

// GenerateResponse sends a system and a user message. thinking is forwarded as
// chat_template_kwargs.enable_thinking, which Qwen-style templates honour.
func (c *OpenAIClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
	thinking bool,
) (*GenerateResponseResult, error) {
	start := c.sending(prompt, temperature)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:        float32(temperature),
		ChatTemplateKwargs: map[string]any{"enable_thinking": thinking},
	})
	if err != nil {
		return nil, c.failed(err, start)
	}
	if len(resp.Choices) == 0 {
		return nil, c.empty("no choices in response")
	}

	return c.completed(&GenerateResponseResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, start), nil
}
