package provider

import (
	"context"
	"sync"
)

// MockClient is a configurable fake Client for tests. Unset function fields
// fall back to benign defaults. All calls are counted, so tests can assert
// how often the orchestrator touched the provider.
type MockClient struct {
	CreateFunc func(ctx context.Context, opts CreateOpts) (*CreateResult, error)
	GetFunc    func(ctx context.Context, name string) (*Cluster, error)
	DeleteFunc func(ctx context.Context, name string) error

	mu          sync.Mutex
	createCalls int
	getCalls    []string
	deleteCalls []string
}

var _ Client = (*MockClient)(nil)

// Create implements Client.
func (m *MockClient) Create(ctx context.Context, opts CreateOpts) (*CreateResult, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()

	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, opts)
	}
	return &CreateResult{ID: "mock-id", Name: opts.Name}, nil
}

// Get implements Client.
func (m *MockClient) Get(ctx context.Context, name string) (*Cluster, error) {
	m.mu.Lock()
	m.getCalls = append(m.getCalls, name)
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, name)
	}
	return &Cluster{ID: "mock-id", Name: name, State: "ready"}, nil
}

// Delete implements Client.
func (m *MockClient) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	m.deleteCalls = append(m.deleteCalls, name)
	m.mu.Unlock()

	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, name)
	}
	return nil
}

// CreateCalls returns how many times Create was invoked.
func (m *MockClient) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// GetCalls returns the names passed to Get, in order.
func (m *MockClient) GetCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.getCalls...)
}

// DeleteCalls returns the names passed to Delete, in order.
func (m *MockClient) DeleteCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleteCalls...)
}
