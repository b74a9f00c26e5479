package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

type MockResponse struct {
	Content json.RawMessage
	Err     error
}

// MockProvider replays canned responses in order and records every request.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []Request
}

func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

func (m *MockProvider) Generate(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)
	if len(m.responses) == 0 {
		return nil, &ErrProviderUnavailable{Err: errors.New("mock: no responses queued")}
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	if err := Validate(req.Schema, next.Content); err != nil {
		return nil, err
	}
	return &Response{Content: next.Content, Model: "mock", StopReason: "end"}, nil
}

func (m *MockProvider) ModelID() string { return "mock" }

func (m *MockProvider) AddResponse(r MockResponse) {
	m.mu.Lock()
	m.responses = append(m.responses, r)
	m.mu.Unlock()
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastRequest returns the most recent request, if any.
func (m *MockProvider) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Request{}, false
	}
	return m.calls[len(m.calls)-1], true
}
