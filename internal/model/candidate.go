package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CandidateRecord is the raw, untrusted output of the extraction oracle.
// Numeric and date fields stay as strings until the validator has parsed
// them; the oracle's formatting cannot be relied on.
type CandidateRecord struct {
	SourceID     string
	Merchant     string
	Amount       string
	Currency     string
	DueDate      string
	TypeHint     string
	CategoryHint string
	BillingCycle string
	Principal    string
	Interest     string
	LateFee      string
	SourceText   string
	Confidence   float64
	AutoDebit    bool
}

// Empty reports whether the candidate carries no financial content at all.
// An empty candidate is not an error; the email simply wasn't about money.
func (c *CandidateRecord) Empty() bool {
	return c.Merchant == "" && c.Amount == ""
}

// ValidatedRecord is a candidate that has survived schema validation.
// All fields are parsed and within their legal ranges.
type ValidatedRecord struct {
	DueDate      *time.Time
	Principal    *decimal.Decimal
	Interest     *decimal.Decimal
	LateFee      *decimal.Decimal
	SourceID     string
	Merchant     string
	Currency     string
	TypeHint     string
	CategoryHint string
	BillingCycle string
	SourceText   string
	Amount       decimal.Decimal
	Confidence   float64
	AutoDebit    bool
}

// ClassifiedRecord is a validated record with its entity type and category
// resolved. Classification is total, so every validated record becomes one.
type ClassifiedRecord struct {
	ValidatedRecord
	Type     EntityType
	Category string
}
