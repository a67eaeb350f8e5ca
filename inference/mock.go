package inference

import (
	"context"
	"sync"
)

// MockClient is a test implementation of Client.
//
// It returns configured responses in order (repeating the last one when
// exhausted), supports error injection, and records every call. Thread-safe.
//
// Example:
//
//	mock := &inference.MockClient{Responses: []string{"hello"}}
//	text, _ := mock.Complete(ctx, "prompt")
//	// text == "hello", mock.Calls() == ["prompt"]
type MockClient struct {
	// Responses is the sequence of completions to return.
	Responses []string

	// Err, if set, is returned by Complete instead of a response.
	Err error

	mu        sync.Mutex
	calls     []string
	callIndex int
}

// Complete implements Client.
func (m *MockClient) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, prompt)

	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.callIndex++
	return m.Responses[idx], nil
}

// Calls returns the prompts passed to Complete, in order.
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Complete was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
