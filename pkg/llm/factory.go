package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Provider names accepted in Config.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider  string        // openai (default), anthropic or gemini
	Endpoint  string        // Base URL; required for openai, optional otherwise
	Model     string        // Model name, e.g. "gpt-4o"
	APIKey    string        // Optional for local OpenAI-compatible endpoints
	Timeout   time.Duration // Per-request HTTP timeout; zero keeps the library default
	MaxTokens int           // Completion bound; only used by anthropic
}

// NewClientFromConfig creates the client for cfg.Provider.
func NewClientFromConfig(ctx context.Context, cfg *Config, logger *zap.Logger) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		client, err := NewOpenAIClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case ProviderAnthropic:
		client, err := NewAnthropicClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	case ProviderGemini:
		client, err := NewGeminiClient(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
