package notify

import (
	"context"
	"sync"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Delivery captures one RunFinished invocation.
type Delivery struct {
	Run         *model.RunRecord
	Obligations []model.ObligationRecord
}

// MockNotifier records deliveries for assertions in tests.
type MockNotifier struct {
	err        error
	deliveries []Delivery
	mu         sync.Mutex
}

// NewMockNotifier creates an empty mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// FailWith makes every subsequent delivery return err.
func (m *MockNotifier) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Deliveries returns a copy of the recorded deliveries.
func (m *MockNotifier) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}

// RunFinished records the delivery.
func (m *MockNotifier) RunFinished(_ context.Context, run *model.RunRecord, obligations []model.ObligationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, Delivery{Run: run, Obligations: obligations})
	return m.err
}
