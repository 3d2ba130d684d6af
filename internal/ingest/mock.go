package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// MockInbox is a configurable in-memory inbox for tests and credential-
// free local runs.
type MockInbox struct {
	err    error
	emails []model.RawEmail
	calls  int
	mu     sync.Mutex
}

// NewMockInbox creates an empty mock inbox.
func NewMockInbox() *MockInbox {
	return &MockInbox{}
}

// Deliver adds emails the next Fetch will return.
func (m *MockInbox) Deliver(emails ...model.RawEmail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, emails...)
}

// FailWith makes every subsequent Fetch return err.
func (m *MockInbox) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Fetch has been invoked.
func (m *MockInbox) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Fetch returns the delivered emails received after since, up to
// maxCount of them.
func (m *MockInbox) Fetch(ctx context.Context, userID string, since time.Time, maxCount int) ([]model.RawEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []model.RawEmail
	for _, email := range m.emails {
		if !since.IsZero() && email.ReceivedAt.Before(since) {
			continue
		}
		result = append(result, email)
		if maxCount > 0 && len(result) >= maxCount {
			break
		}
	}
	return result, nil
}
