// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// ObligationFilter defines filtering options for obligation queries.
// Zero values mean "no filter".
type ObligationFilter struct {
	Type     model.EntityType
	Category string
}

// Storage defines the contract for the persistence layer. Implementations
// must tolerate the single-writer-per-user discipline the run coordinator
// enforces: all writes for one user arrive serialized.
type Storage interface {
	// Obligation operations
	SaveObligation(ctx context.Context, obligation *model.ObligationRecord) error
	GetObligation(ctx context.Context, id string) (*model.ObligationRecord, error)
	GetObligationsByUser(ctx context.Context, userID string) ([]model.ObligationRecord, error)
	ListObligations(ctx context.Context, userID string, filter ObligationFilter) ([]model.ObligationRecord, error)

	// Run operations
	SaveRun(ctx context.Context, run *model.RunRecord) error
	GetRun(ctx context.Context, runID string) (*model.RunRecord, error)
	GetRunsByUser(ctx context.Context, userID string) ([]model.RunRecord, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Inbox is the ingest adapter: a finite, one-shot fetch of raw emails for
// a user per run invocation.
type Inbox interface {
	Fetch(ctx context.Context, userID string, since time.Time, maxCount int) ([]model.RawEmail, error)
}

// Notifier consumes a run's final entity list once the run reaches a
// terminal state. Delivery is at-least-once; the pipeline never blocks a
// run's terminal transition on notification failure.
type Notifier interface {
	RunFinished(ctx context.Context, run *model.RunRecord, obligations []model.ObligationRecord) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
