package fetch

import (
	"context"
	"sync"
)

// MockFetcher is a mock implementation of Fetcher for testing
type MockFetcher struct {
	MockResult *Result
	MockError  error

	// Respond, when set, overrides MockResult/MockError per query
	Respond func(q Query) (*Result, error)

	mu      sync.Mutex
	queries []Query
}

func (m *MockFetcher) Fetch(ctx context.Context, q Query) (*Result, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()

	if m.Respond != nil {
		return m.Respond(q)
	}
	return m.MockResult, m.MockError
}

// Queries returns the queries seen so far
func (m *MockFetcher) Queries() []Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Query(nil), m.queries...)
}
