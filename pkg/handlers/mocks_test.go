package handlers

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
)

type mockSchemaProvider struct {
	props []models.TargetProperty
	err   error
}

func (m *mockSchemaProvider) ListProperties(ctx context.Context) ([]models.TargetProperty, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.props, nil
}

type mockPropertyCreator struct {
	createFunc func(ctx context.Context, displayName string) error
}

func (m *mockPropertyCreator) CreateProperty(ctx context.Context, displayName string) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, displayName)
	}
	return nil
}

type mockFeedbackSink struct {
	mu       sync.Mutex
	patchErr error
	patched  []string
}

func (m *mockFeedbackSink) GetLexicon(ctx context.Context, remoteID string) (*models.Lexicon, error) {
	return &models.Lexicon{}, nil
}

func (m *mockFeedbackSink) PatchLexicon(ctx context.Context, remoteID string, patch models.LexiconPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.patchErr != nil {
		return m.patchErr
	}
	m.patched = append(m.patched, remoteID)
	return nil
}

type mockSuggestionProvider struct {
	suggestFunc func(ctx context.Context, req services.SuggestionRequest) (map[string]string, error)
}

func (m *mockSuggestionProvider) Suggest(ctx context.Context, req services.SuggestionRequest) (map[string]string, error) {
	if m.suggestFunc != nil {
		return m.suggestFunc(ctx, req)
	}
	return map[string]string{}, nil
}
