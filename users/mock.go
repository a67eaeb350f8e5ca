package users

import (
	"context"
	"sync"
)

// MockDirectory is an in-memory Directory for testing.
type MockDirectory struct {
	mu         sync.Mutex
	Users      []User
	Watchlists map[string][]string

	// Err, when set, is returned by every call.
	Err error

	listCalls      int
	watchlistCalls []string
}

// ListAll implements Directory.
func (m *MockDirectory) ListAll(_ context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]User, len(m.Users))
	copy(out, m.Users)
	return out, nil
}

// WatchlistSymbols implements Directory.
func (m *MockDirectory) WatchlistSymbols(_ context.Context, email string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchlistCalls = append(m.watchlistCalls, email)
	if m.Err != nil {
		return nil, m.Err
	}
	symbols := m.Watchlists[email]
	out := make([]string, len(symbols))
	copy(out, symbols)
	return out, nil
}

// ListCalls returns how many times ListAll was invoked.
func (m *MockDirectory) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// WatchlistCalls returns the emails WatchlistSymbols was asked about,
// in order.
func (m *MockDirectory) WatchlistCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.watchlistCalls))
	copy(out, m.watchlistCalls)
	return out
}
