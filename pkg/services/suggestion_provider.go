package services

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-mapper/pkg/llm"
)

const suggestionSystemMessage = "You map tabular column headers onto a fixed target schema. Respond only with a JSON object."

// LLMSuggestionProvider asks a generative-text model for a batched mapping.
type LLMSuggestionProvider struct {
	client      llm.LLMClient
	temperature float64
	logger      *zap.Logger
}

var _ SuggestionProvider = (*LLMSuggestionProvider)(nil)

// NewLLMSuggestionProvider wraps client as a SuggestionProvider.
func NewLLMSuggestionProvider(client llm.LLMClient, temperature float64, logger *zap.Logger) *LLMSuggestionProvider {
	return &LLMSuggestionProvider{
		client:      client,
		temperature: temperature,
		logger:      logger.Named("suggestion-provider"),
	}
}

// Suggest sends one request and decodes the header to target object. The request is
// never retried.
func (p *LLMSuggestionProvider) Suggest(ctx context.Context, req SuggestionRequest) (map[string]string, error) {
	prompt := req.Instruction
	if prompt == "" {
		prompt = BuildSuggestionInstruction(req.Headers, req.Targets)
	}

	p.logger.Debug("Requesting mapping suggestions",
		zap.String("model", p.client.GetModel()),
		zap.Int("headers", len(req.Headers)),
		zap.Int("targets", len(req.Targets)))

	result, err := p.client.GenerateResponse(ctx, prompt, suggestionSystemMessage, p.temperature, false)
	if err != nil {
		classified := llm.ClassifyError(err)
		p.logger.Error("Suggestion request failed",
			zap.String("error_type", string(classified.Type)),
			zap.Error(err))
		return nil, &apperrors.SuggestionProviderError{
			Message:     "request failed",
			Unavailable: classified.Unavailable(),
			Cause:       err,
		}
	}

	raw, err := llm.ParseJSONResponse[map[string]json.RawMessage](result.Content)
	if err != nil {
		p.logger.Error("Failed to parse suggestion response",
			zap.String("response_preview", previewResponse(result.Content, 200)),
			zap.Error(err))
		return nil, &apperrors.SuggestionProviderError{Message: "malformed response", Cause: err}
	}
	if raw == nil {
		return nil, &apperrors.SuggestionProviderError{Message: "malformed response", Cause: errors.New("response is not a JSON object")}
	}
	// Headers answered with null or a non-string are treated as not proposed.
	proposals := jsonutil.FlexibleStringMap(raw)

	p.logger.Debug("Suggestion response parsed",
		zap.Int("proposals", len(proposals)),
		zap.Int("total_tokens", result.TotalTokens))
	return proposals, nil
}

func previewResponse(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
