package extract

import (
	"context"
	"strings"
	"sync"
)

// MockOracle is a test implementation of the Oracle interface. Responses
// are matched by substring against the inferred text, in registration
// order.
type MockOracle struct {
	err       error
	responses []mockResponse
	calls     []string
	failTimes int
	mu        sync.Mutex
}

type mockResponse struct {
	match   string
	content string
}

// NewMockOracle creates a new mock oracle.
func NewMockOracle() *MockOracle {
	return &MockOracle{}
}

// RespondWith registers a canned response for texts containing match.
// An empty match string makes it the fallback response.
func (m *MockOracle) RespondWith(match, content string) *MockOracle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{match: match, content: content})
	return m
}

// FailWith makes the next n calls return err before responses resume.
func (m *MockOracle) FailWith(err error, n int) *MockOracle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.failTimes = n
	return m
}

// Calls returns the texts the oracle has been asked to infer on.
func (m *MockOracle) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Infer implements the Oracle interface.
func (m *MockOracle) Infer(_ context.Context, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, text)

	if m.failTimes > 0 {
		m.failTimes--
		return "", m.err
	}

	var fallback string
	for _, r := range m.responses {
		if r.match == "" {
			fallback = r.content
			continue
		}
		if strings.Contains(text, r.match) {
			return r.content, nil
		}
	}

	if fallback != "" {
		return fallback, nil
	}

	// No registered response: report no financial content.
	return `{"merchant": "", "amount": "", "confidence_score": 0}`, nil
}
