package service

import "context"

// MockService is a test double for the Service interface
type MockService struct {
	name string

	// ReloadFunc customizes Reload; nil means success
	ReloadFunc func(ctx context.Context) error

	// ReloadCalls counts Reload invocations
	ReloadCalls int
}

// NewMockService creates a MockService that always succeeds
func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

// Name returns the service name
func (m *MockService) Name() string {
	return m.name
}

// Reload records the call and invokes the mock function if set
func (m *MockService) Reload(ctx context.Context) error {
	m.ReloadCalls++
	if m.ReloadFunc != nil {
		return m.ReloadFunc(ctx)
	}
	return nil
}

// Reset clears call tracking
func (m *MockService) Reset() {
	m.ReloadCalls = 0
}
