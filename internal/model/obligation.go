// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType is the kind of financial obligation a record represents.
type EntityType string

// Recognized entity types.
const (
	TypeSubscription EntityType = "subscription"
	TypeBill         EntityType = "bill"
	TypeLoan         EntityType = "loan"
)

// Valid reports whether t is one of the recognized entity types.
func (t EntityType) Valid() bool {
	switch t {
	case TypeSubscription, TypeBill, TypeLoan:
		return true
	}
	return false
}

// ObligationStatus tracks the payment state of an obligation.
type ObligationStatus string

// Obligation status constants.
const (
	StatusPending ObligationStatus = "pending"
	StatusPaid    ObligationStatus = "paid"
	StatusOverdue ObligationStatus = "overdue"
)

// Valid reports whether s is a recognized status.
func (s ObligationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// SchemaVersion is stamped onto every obligation the pipeline writes so
// later migrations can tell which processing rules produced a record.
const SchemaVersion = 1

// knownCategories is the open-but-validated category set. The classifier
// only ever emits values from this set; external writers are held to it too.
var knownCategories = map[string]struct{}{
	"entertainment":  {},
	"productivity":   {},
	"cloud_storage":  {},
	"utility":        {},
	"credit_card":    {},
	"municipal":      {},
	"medical":        {},
	"miscellaneous":  {},
	"home_loan":      {},
	"personal_loan":  {},
	"education_loan": {},
	"vehicle_loan":   {},
	"bnpl":           {},
	"other":          {},
}

// KnownCategory reports whether name is in the validated category set.
func KnownCategory(name string) bool {
	_, ok := knownCategories[name]
	return ok
}

// Categories returns the validated category set.
func Categories() []string {
	out := make([]string, 0, len(knownCategories))
	for name := range knownCategories {
		out = append(out, name)
	}
	return out
}

// ObligationRecord is the persisted financial obligation entity. One record
// may be backed by several source emails once deduplication has folded
// repeat observations into it.
type ObligationRecord struct {
	FirstSeenAt    time.Time
	LastUpdatedAt  time.Time
	DueDate        *time.Time
	Principal      *decimal.Decimal
	Interest       *decimal.Decimal
	LateFee        *decimal.Decimal
	ID             string
	UserID         string
	Merchant       string
	Currency       string
	BillingCycle   string
	Type           EntityType
	Category       string
	Status         ObligationStatus
	SourceEmailIDs []string
	Amount         decimal.Decimal
	Confidence     float64
	AutoDebit      bool
	SchemaVersion  int
}

// Validate checks the record invariants. Every write path goes through this.
func (o *ObligationRecord) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("obligation missing id")
	}
	if o.UserID == "" {
		return fmt.Errorf("obligation %s missing user id", o.ID)
	}
	if o.Merchant == "" {
		return fmt.Errorf("obligation %s missing merchant", o.ID)
	}
	if o.Amount.IsNegative() {
		return fmt.Errorf("obligation %s has negative amount %s", o.ID, o.Amount)
	}
	if len(o.Currency) != 3 {
		return fmt.Errorf("obligation %s has invalid currency %q", o.ID, o.Currency)
	}
	if !o.Type.Valid() {
		return fmt.Errorf("obligation %s has invalid entity type %q", o.ID, o.Type)
	}
	if !KnownCategory(o.Category) {
		return fmt.Errorf("obligation %s has unknown category %q", o.ID, o.Category)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("obligation %s has invalid status %q", o.ID, o.Status)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("obligation %s has confidence %.3f outside [0,1]", o.ID, o.Confidence)
	}
	if len(o.SourceEmailIDs) == 0 {
		return fmt.Errorf("obligation %s has no source emails", o.ID)
	}
	return nil
}

// HasSource reports whether the given email id already backs this record.
func (o *ObligationRecord) HasSource(emailID string) bool {
	for _, id := range o.SourceEmailIDs {
		if id == emailID {
			return true
		}
	}
	return false
}

// AddSource appends an email id to the source set if not already present.
func (o *ObligationRecord) AddSource(emailID string) {
	if !o.HasSource(emailID) {
		o.SourceEmailIDs = append(o.SourceEmailIDs, emailID)
	}
}
