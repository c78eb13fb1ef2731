package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// DefaultAnthropicMaxTokens bounds a completion when the config leaves MaxTokens unset.
const DefaultAnthropicMaxTokens = 2000

// AnthropicClient provides access to the Anthropic Messages API.
type AnthropicClient struct {
	backend
	client    *anthropic.Client
	maxTokens int
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
// Endpoint is optional and overrides the public API base URL.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultAnthropicMaxTokens
	}

	return &AnthropicClient{
		backend:   backend{model: cfg.Model, endpoint: cfg.Endpoint, logger: logger.Named("llm.anthropic")},
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		maxTokens: maxTokens,
	}, nil
}

// GenerateResponse sends prompt as a single user message. thinking is ignored.
func (c *AnthropicClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
	thinking bool,
) (*GenerateResponseResult, error) {
	temp := float32(temperature)
	start := c.sending(prompt, temperature)

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      systemMessage,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return nil, c.failed(err, start)
	}

	content := firstText(resp)
	if content == "" {
		return nil, c.empty("no text content in response")
	}

	return c.completed(&GenerateResponseResult{
		Content:          content,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, start), nil
}

func firstText(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}
