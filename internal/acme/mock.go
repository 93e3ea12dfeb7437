package acme

import (
	"context"
	"sync"
)

// MockAcquirer is a mock implementation of Acquirer for testing
type MockAcquirer struct {
	NameValue    string
	Required     []string
	PrepareFunc  func(ctx context.Context) error
	AcquireFunc  func(ctx context.Context, req Request) (*Bundle, error)
	CleanFunc    func(ctx context.Context) error
	PrepareCalls int
	CleanCalls   int
	Requests     []Request
	mu           sync.Mutex
}

// Name returns NameValue or "mock"
func (m *MockAcquirer) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock"
}

// Requirements returns Required
func (m *MockAcquirer) Requirements() []string {
	return m.Required
}

// Prepare calls the mock function
func (m *MockAcquirer) Prepare(ctx context.Context) error {
	m.mu.Lock()
	m.PrepareCalls++
	m.mu.Unlock()
	if m.PrepareFunc != nil {
		return m.PrepareFunc(ctx)
	}
	return nil
}

// Acquire records the request and calls the mock function. Without one it
// returns the bundle layout for the request with no files written.
func (m *MockAcquirer) Acquire(ctx context.Context, req Request) (*Bundle, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, req)
	}
	return NewBundle(req.Domain, req.OutputDir), nil
}

// Clean calls the mock function
func (m *MockAcquirer) Clean(ctx context.Context) error {
	m.mu.Lock()
	m.CleanCalls++
	m.mu.Unlock()
	if m.CleanFunc != nil {
		return m.CleanFunc(ctx)
	}
	return nil
}
