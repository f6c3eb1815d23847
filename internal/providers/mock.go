package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockGenerator is a Generator for testing.
type MockGenerator struct {
	// Configurable behavior
	Latency time.Duration

	// Responses maps progress values to canned results. When a progress
	// has no entry, a synthetic result is produced.
	Responses map[int]*Result

	// FailuresAt maps progress values to an error script: the call at
	// that progress pops the next error until the script is exhausted.
	FailuresAt map[int][]error

	mu           sync.Mutex
	requestCount atomic.Int64
	calls        []*Request
}

// NewMockGenerator creates a mock with sensible defaults.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Responses:  make(map[int]*Result),
		FailuresAt: make(map[int][]error),
	}
}

// Name returns the generator identifier.
func (m *MockGenerator) Name() string {
	return MockName
}

// Generate replays scripted failures and canned responses.
func (m *MockGenerator) Generate(ctx context.Context, req *Request) (*Result, error) {
	count := m.requestCount.Add(1)

	m.mu.Lock()
	reqCopy := *req
	m.calls = append(m.calls, &reqCopy)
	script := m.FailuresAt[req.Progress]
	if len(script) > 0 {
		err := script[0]
		m.FailuresAt[req.Progress] = script[1:]
		m.mu.Unlock()
		return nil, err
	}
	canned := m.Responses[req.Progress]
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if canned != nil {
		out := *canned
		if out.Provider == "" {
			out.Provider = MockName
		}
		out.RequestID = fmt.Sprintf("mock-%d", count)
		return &out, nil
	}

	return &Result{
		Summary:    fmt.Sprintf("summary through %d%%", req.Progress),
		Characters: nil,
		Provider:   MockName,
		ModelUsed:  "mock-model",
		RequestID:  fmt.Sprintf("mock-%d", count),
	}, nil
}

// RequestCount returns the number of Generate calls made.
func (m *MockGenerator) RequestCount() int64 {
	return m.requestCount.Load()
}

// Calls returns copies of every request seen, in order.
func (m *MockGenerator) Calls() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded calls and the request counter.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
	m.requestCount.Store(0)
}

// Verify interface
var _ Generator = (*MockGenerator)(nil)
