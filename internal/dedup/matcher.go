package dedup

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Config holds the fuzzy-match tunables. The defaults are starting points
// pending tuning against real inboxes; everything here is exposed through
// the application config.
type Config struct {
	// SimilarityThreshold is the minimum merchant-name similarity ratio
	// for two records to be merge candidates.
	SimilarityThreshold float64

	// AmountRelTolerance is the maximum relative amount difference
	// (e.g. 0.01 for 1%) that still counts as the same obligation.
	AmountRelTolerance float64

	// AmountAbsTolerance absorbs rounding differences on small amounts.
	AmountAbsTolerance decimal.Decimal

	// Due-date windows per entity type. Bills cycle tightly; annual
	// subscriptions drift by weeks.
	BillDateWindow         time.Duration
	LoanDateWindow         time.Duration
	SubscriptionDateWindow time.Duration
}

// DefaultConfig returns the default matching configuration.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:    0.85,
		AmountRelTolerance:     0.01,
		AmountAbsTolerance:     decimal.NewFromFloat(0.01),
		BillDateWindow:         7 * 24 * time.Hour,
		LoanDateWindow:         10 * 24 * time.Hour,
		SubscriptionDateWindow: 45 * 24 * time.Hour,
	}
}

// matches reports whether an existing record plausibly describes the same
// underlying obligation as the classified candidate.
func (c Config) matches(rec *model.ClassifiedRecord, existing *model.ObligationRecord) bool {
	if existing.Currency != rec.Currency {
		return false
	}

	if merchantSimilarity(rec.Merchant, existing.Merchant) < c.SimilarityThreshold {
		return false
	}

	if !c.amountsClose(rec.Amount, existing.Amount) {
		return false
	}

	return c.datesWithinWindow(rec.DueDate, existing.DueDate, rec.Type)
}

// amountsClose applies the relative tolerance with the absolute epsilon
// as a floor, absorbing rounding and currency-formatting differences.
func (c Config) amountsClose(a, b decimal.Decimal) bool {
	diff := a.Sub(b).Abs()

	if diff.LessThanOrEqual(c.AmountAbsTolerance) {
		return true
	}

	larger := a
	if b.GreaterThan(a) {
		larger = b
	}
	if larger.IsZero() {
		return true
	}

	rel := diff.Div(larger)
	return rel.LessThanOrEqual(decimal.NewFromFloat(c.AmountRelTolerance))
}

// datesWithinWindow checks due-date proximity under the entity type's
// window. A missing date on either side cannot contradict a match.
func (c Config) datesWithinWindow(a, b *time.Time, entityType model.EntityType) bool {
	if a == nil || b == nil {
		return true
	}

	window := c.BillDateWindow
	switch entityType {
	case model.TypeLoan:
		window = c.LoanDateWindow
	case model.TypeSubscription:
		window = c.SubscriptionDateWindow
	}

	diff := a.Sub(*b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}
