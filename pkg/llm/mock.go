package llm

import (
	"context"
	"sync"
)

// StubClient is an LLMClient for tests. It answers every request with Reply,
// or with ReplyFunc when set, and remembers the prompts it was sent.
type StubClient struct {
	Reply     string
	ReplyFunc func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

// NewStubClient returns a stub that always answers reply.
func NewStubClient(reply string) *StubClient {
	return &StubClient{Reply: reply}
}

func (s *StubClient) GenerateResponse(_ context.Context, prompt, _ string, _ float64, _ bool) (*GenerateResponseResult, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	content := s.Reply
	if s.ReplyFunc != nil {
		var err error
		if content, err = s.ReplyFunc(prompt); err != nil {
			return nil, err
		}
	}
	return &GenerateResponseResult{Content: content}, nil
}

// Prompts returns the prompts received so far, oldest first.
func (s *StubClient) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *StubClient) GetModel() string { return "stub-model" }

func (s *StubClient) GetEndpoint() string { return "" }

var _ LLMClient = (*StubClient)(nil)
