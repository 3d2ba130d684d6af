// Package dedup reconciles newly classified records against a user's
// existing obligations, deciding insert, merge, or discard. Reconciliation
// is a read-modify-write over the user's record set and must run with at
// most one in-flight reconciliation per user; the run coordinator enforces
// that serialization.
package dedup

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Outcome is the reconciliation decision kind.
type Outcome string

// Reconciliation outcomes.
const (
	OutcomeInsert  Outcome = "insert"
	OutcomeMerge   Outcome = "merge"
	OutcomeDiscard Outcome = "discard"
)

// Discard reasons.
const (
	ReasonDuplicateSource = "duplicate-source"
)

// Decision is the result of reconciling one classified record.
type Decision struct {
	// Record is the obligation to persist: a new record for Insert, the
	// updated target for Merge, nil for Discard.
	Record *model.ObligationRecord

	Outcome Outcome

	// Reason explains a discard.
	Reason string

	// Ambiguous is set when multiple existing records matched and the
	// tie-break rule picked one. Recorded for observability, never an
	// error.
	Ambiguous bool
}

// Reconciler applies the matching and merge rules.
type Reconciler struct {
	cfg Config
	now func() time.Time
}

// New creates a reconciler with the given matching configuration.
func New(cfg Config) *Reconciler {
	return &Reconciler{cfg: cfg, now: time.Now}
}

// Reconcile decides what to do with a classified record given the user's
// existing obligations. It never mutates the inputs; Merge returns an
// updated copy of the target.
func (r *Reconciler) Reconcile(userID string, rec *model.ClassifiedRecord, existing []model.ObligationRecord) Decision {
	// Idempotency guard: if this exact email already backs a record,
	// reprocessing it is a no-op.
	for i := range existing {
		if existing[i].HasSource(rec.SourceID) {
			return Decision{Outcome: OutcomeDiscard, Reason: ReasonDuplicateSource}
		}
	}

	matches := make([]*model.ObligationRecord, 0, 1)
	for i := range existing {
		if r.cfg.matches(rec, &existing[i]) {
			matches = append(matches, &existing[i])
		}
	}

	if len(matches) == 0 {
		return Decision{Outcome: OutcomeInsert, Record: r.newRecord(userID, rec)}
	}

	ambiguous := len(matches) > 1
	target := r.pickTarget(rec, matches)
	if ambiguous {
		slog.Info("Multiple merge targets matched, tie-break applied",
			"user_id", userID,
			"source_id", rec.SourceID,
			"merchant", rec.Merchant,
			"candidates", len(matches),
			"chosen", target.ID)
	}

	// A paid obligation with a strictly later due date on the new
	// observation is a new billing cycle, not a stale re-extraction.
	if target.Status == model.StatusPaid && rec.DueDate != nil &&
		(target.DueDate == nil || rec.DueDate.After(*target.DueDate)) {
		return Decision{Outcome: OutcomeInsert, Record: r.newRecord(userID, rec), Ambiguous: ambiguous}
	}

	return Decision{Outcome: OutcomeMerge, Record: r.merge(target, rec), Ambiguous: ambiguous}
}

// pickTarget applies the tie-break rule: prefer the record with the most
// recent due date at or before the candidate's; failing that, the most
// recently updated.
func (r *Reconciler) pickTarget(rec *model.ClassifiedRecord, matches []*model.ObligationRecord) *model.ObligationRecord {
	if len(matches) == 1 {
		return matches[0]
	}

	if rec.DueDate != nil {
		var best *model.ObligationRecord
		for _, m := range matches {
			if m.DueDate == nil || m.DueDate.After(*rec.DueDate) {
				continue
			}
			if best == nil || m.DueDate.After(*best.DueDate) {
				best = m
			}
		}
		if best != nil {
			return best
		}
	}

	sorted := make([]*model.ObligationRecord, len(matches))
	copy(sorted, matches)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LastUpdatedAt.After(sorted[j].LastUpdatedAt)
	})
	return sorted[0]
}

// merge folds the new observation into the target. Fields move only when
// the new observation carries equal or higher confidence; status never
// regresses.
func (r *Reconciler) merge(target *model.ObligationRecord, rec *model.ClassifiedRecord) *model.ObligationRecord {
	merged := *target
	merged.SourceEmailIDs = append([]string(nil), target.SourceEmailIDs...)
	merged.AddSource(rec.SourceID)

	if rec.Confidence >= target.Confidence {
		merged.Amount = rec.Amount
		if rec.DueDate != nil {
			due := *rec.DueDate
			merged.DueDate = &due
		}
		merged.Confidence = rec.Confidence
		merged.AutoDebit = rec.AutoDebit || target.AutoDebit
		if rec.BillingCycle != "" {
			merged.BillingCycle = rec.BillingCycle
		}
		merged.Principal = rec.Principal
		merged.Interest = rec.Interest
		merged.LateFee = rec.LateFee
	}

	merged.LastUpdatedAt = r.now()
	return &merged
}

// newRecord builds a fresh obligation from a classified record.
func (r *Reconciler) newRecord(userID string, rec *model.ClassifiedRecord) *model.ObligationRecord {
	now := r.now()

	var dueDate *time.Time
	if rec.DueDate != nil {
		due := *rec.DueDate
		dueDate = &due
	}

	return &model.ObligationRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		Merchant:       rec.Merchant,
		Amount:         rec.Amount,
		Currency:       rec.Currency,
		DueDate:        dueDate,
		Type:           rec.Type,
		Category:       rec.Category,
		AutoDebit:      rec.AutoDebit,
		Status:         model.StatusPending,
		Confidence:     rec.Confidence,
		BillingCycle:   rec.BillingCycle,
		Principal:      rec.Principal,
		Interest:       rec.Interest,
		LateFee:        rec.LateFee,
		SourceEmailIDs: []string{rec.SourceID},
		FirstSeenAt:    now,
		LastUpdatedAt:  now,
		SchemaVersion:  model.SchemaVersion,
	}
}
