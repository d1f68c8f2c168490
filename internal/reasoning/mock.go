package reasoning

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// MockProvider is a scripted provider for tests and offline runs. Responses
// are consumed in order; a Handler takes precedence when set.
type MockProvider struct {
	mu        sync.Mutex
	responses []json.RawMessage
	errs      []error
	calls     []Request

	// Handler, when non-nil, computes the response for every call.
	Handler func(req Request) (json.RawMessage, error)
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Name returns "mock".
func (m *MockProvider) Name() string { return "mock" }

// Enqueue appends a scripted JSON response.
func (m *MockProvider) Enqueue(raw string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, json.RawMessage(raw))
	m.errs = append(m.errs, nil)
	return m
}

// EnqueueError appends a scripted failure.
func (m *MockProvider) EnqueueError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, nil)
	m.errs = append(m.errs, err)
	return m
}

// Calls returns the requests seen so far.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// Generate returns the next scripted response or invokes the handler.
func (m *MockProvider) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	handler := m.Handler
	var (
		raw json.RawMessage
		err error
	)
	if handler == nil {
		if len(m.responses) == 0 {
			m.mu.Unlock()
			return nil, types.NewRetryableError(ErrProviderUnavailable, "mock provider has no scripted responses")
		}
		raw, err = m.responses[0], m.errs[0]
		m.responses = m.responses[1:]
		m.errs = m.errs[1:]
	}
	m.mu.Unlock()

	if handler != nil {
		return handler(req)
	}
	return raw, err
}
