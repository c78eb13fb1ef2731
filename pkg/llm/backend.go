package llm

import (
	"time"

	"go.uber.org/zap"
)

// backend holds what every provider client reports about itself and the
// logging shared by all of them.
type backend struct {
	model    string
	endpoint string
	logger   *zap.Logger
}

// GetModel returns the configured model name.
func (b backend) GetModel() string {
	return b.model
}

// GetEndpoint returns the configured endpoint, empty when the provider default is used.
func (b backend) GetEndpoint() string {
	return b.endpoint
}

func (b backend) sending(prompt string, temperature float64) time.Time {
	b.logger.Debug("LLM request",
		zap.String("model", b.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))
	return time.Now()
}

// failed logs a transport error and returns it classified and tagged with this backend.
func (b backend) failed(err error, start time.Time) error {
	b.logger.Error("LLM request failed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	llmErr := ClassifyError(err)
	llmErr.Model = b.model
	llmErr.Endpoint = b.endpoint
	return llmErr
}

func (b backend) empty(message string) error {
	return NewErrorWithContext(ErrorTypeUnknown, message, false, nil, b.model, b.endpoint, 0)
}

func (b backend) completed(result *GenerateResponseResult, start time.Time) *GenerateResponseResult {
	b.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))
	return result
}
