package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/llm"
)

func TestLLMSuggestionProvider_ParsesResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bare object", content: `{"Tag": "Tag Number", "Notes": "N/A"}`},
		{name: "code fence", content: "```json\n{\"Tag\": \"Tag Number\", \"Notes\": \"N/A\"}\n```"},
		{name: "think tags and prose", content: "<think>matching</think>Here you go: {\"Tag\": \"Tag Number\", \"Notes\": \"N/A\"} done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := llm.NewStubClient(tt.content)
			p := NewLLMSuggestionProvider(client, 0.2, zap.NewNop())

			got, err := p.Suggest(context.Background(), SuggestionRequest{
				Instruction: "map these",
				Headers:     []string{"Tag", "Notes"},
				Targets:     []string{"Tag Number"},
			})

			require.NoError(t, err)
			assert.Equal(t, map[string]string{"Tag": "Tag Number", "Notes": "N/A"}, got)
			assert.Equal(t, []string{"map these"}, client.Prompts())
		})
	}
}

func TestLLMSuggestionProvider_BuildsInstructionWhenMissing(t *testing.T) {
	client := llm.NewStubClient(`{}`)
	p := NewLLMSuggestionProvider(client, 0, zap.NewNop())

	_, err := p.Suggest(context.Background(), SuggestionRequest{Headers: []string{"Tag"}, Targets: []string{"Tag Number"}})

	require.NoError(t, err)
	require.Len(t, client.Prompts(), 1)
	assert.Contains(t, client.Prompts()[0], "Source CSV Headers to map: Tag")
}

func TestLLMSuggestionProvider_LooselyTypedValues(t *testing.T) {
	client := llm.NewStubClient(`{"Tag": "Tag Number", "Notes": null, "Rev": 3, "Qty": ""}`)
	p := NewLLMSuggestionProvider(client, 0, zap.NewNop())

	got, err := p.Suggest(context.Background(), SuggestionRequest{Headers: []string{"Tag", "Notes", "Rev", "Qty"}})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Tag": "Tag Number", "Rev": "3"}, got)
}

func TestLLMSuggestionProvider_Malformed(t *testing.T) {
	for _, content := range []string{"no json here", `["Tag Number"]`, `null`} {
		t.Run(content, func(t *testing.T) {
			client := llm.NewStubClient(content)
			p := NewLLMSuggestionProvider(client, 0, zap.NewNop())

			_, err := p.Suggest(context.Background(), SuggestionRequest{Headers: []string{"Tag"}})

			require.Error(t, err)
			var perr *apperrors.SuggestionProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "malformed response", perr.Message)
			assert.False(t, perr.Unavailable)
			assert.Equal(t, "parse error", apperrors.FailureLabel(err))
		})
	}
}

func TestLLMSuggestionProvider_TransportFailure(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantUnavailable bool
	}{
		{name: "unreachable", err: errors.New("dial tcp: connection refused"), wantUnavailable: true},
		{name: "auth", err: errors.New("status code: 401, invalid api key"), wantUnavailable: true},
		{name: "rate limited", err: errors.New("HTTP 429 too many requests"), wantUnavailable: true},
		{name: "unknown", err: errors.New("something odd"), wantUnavailable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := llm.NewStubClient("")
			client.ReplyFunc = func(string) (string, error) { return "", tt.err }
			p := NewLLMSuggestionProvider(client, 0, zap.NewNop())

			_, err := p.Suggest(context.Background(), SuggestionRequest{Headers: []string{"Tag"}})

			var perr *apperrors.SuggestionProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "request failed", perr.Message)
			assert.Equal(t, tt.wantUnavailable, perr.Unavailable)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
