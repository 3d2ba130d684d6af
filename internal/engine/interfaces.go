package engine

import (
	"context"

	"github.com/Veraticus/the-bills-must-flow/internal/dedup"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Extractor turns normalized email text into candidate records via the
// external oracle.
type Extractor interface {
	Extract(ctx context.Context, email model.NormalizedEmail) (*model.CandidateRecord, error)
}

// Validator enforces schema constraints on candidate records.
type Validator interface {
	Validate(c *model.CandidateRecord) (*model.ValidatedRecord, error)
}

// Reconciler decides insert, merge, or discard for a classified record
// against a user's existing obligations.
type Reconciler interface {
	Reconcile(userID string, rec *model.ClassifiedRecord, existing []model.ObligationRecord) dedup.Decision
}
