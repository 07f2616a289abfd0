package transform

import (
	"context"
	"sync"
)

// MockClient is a Client whose behavior is set per test.
type MockClient struct {
	mu                     sync.Mutex
	CompleteWithSystemFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	calls                  []mockCall
}

type mockCall struct {
	System string
	User   string
}

func (m *MockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{System: systemPrompt, User: userPrompt})
	m.mu.Unlock()
	if m.CompleteWithSystemFunc != nil {
		return m.CompleteWithSystemFunc(ctx, systemPrompt, userPrompt)
	}
	return "", nil
}

func (m *MockClient) Calls() []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockCall(nil), m.calls...)
}
