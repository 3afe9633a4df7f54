package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider replays scripted completions in order. Once the script is
// exhausted it keeps returning the last entry. CompleteFunc, when set, wins.
type MockProvider struct {
	Responses    []string
	Err          error
	CompleteFunc func(ctx context.Context, prompt string, opts Options) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (m *MockProvider) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	call := len(m.prompts) - 1
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, opts)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", fmt.Errorf("mock provider has no scripted responses")
	}
	if call >= len(m.Responses) {
		call = len(m.Responses) - 1
	}
	return m.Responses[call], nil
}

// Prompts returns every prompt received so far.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
