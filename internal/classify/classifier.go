// Package classify assigns an entity type and category to every validated
// record. Classification is a total, deterministic function: the oracle's
// hints are trusted when legal, deterministic merchant rules cover the
// rest, and "bill"/"other" are the fallbacks of last resort.
package classify

import (
	"strings"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Classify resolves the entity type and category for a validated record.
// It never fails; every input receives exactly one type and one category.
func Classify(rec *model.ValidatedRecord) model.ClassifiedRecord {
	out := model.ClassifiedRecord{ValidatedRecord: *rec}

	out.Type = resolveType(rec)
	out.Category = resolveCategory(rec, out.Type)

	if !out.AutoDebit {
		out.AutoDebit = detectAutoDebit(rec.SourceText)
	}

	if out.Type == model.TypeSubscription && out.BillingCycle == "" {
		out.BillingCycle = "monthly"
	}

	return out
}

// resolveType trusts a legal oracle hint, then falls back to merchant and
// content rules, then to "bill".
func resolveType(rec *model.ValidatedRecord) model.EntityType {
	if hint := model.EntityType(rec.TypeHint); hint.Valid() {
		return hint
	}

	merchant := strings.ToLower(rec.Merchant)
	for _, provider := range subscriptionProviders {
		if strings.Contains(merchant, provider) {
			return model.TypeSubscription
		}
	}

	// An explicit principal/interest breakdown is a loan regardless of
	// what the text says.
	if rec.Principal != nil && rec.Interest != nil {
		return model.TypeLoan
	}

	haystack := merchant + " " + strings.ToLower(rec.SourceText)
	for _, signal := range loanSignals {
		if strings.Contains(haystack, signal) {
			return model.TypeLoan
		}
	}

	return model.TypeBill
}

// resolveCategory prefers a known oracle hint, then the merchant lookup,
// then the catch-all.
func resolveCategory(rec *model.ValidatedRecord, entityType model.EntityType) string {
	if rec.CategoryHint != "" && model.KnownCategory(rec.CategoryHint) {
		return rec.CategoryHint
	}

	merchant := strings.ToLower(rec.Merchant)
	for _, entry := range merchantCategories {
		if strings.Contains(merchant, entry.keyword) {
			return entry.category
		}
	}

	// Loans without a specific product match still deserve a loan bucket.
	if entityType == model.TypeLoan {
		return "personal_loan"
	}

	return "other"
}

func detectAutoDebit(text string) bool {
	lower := strings.ToLower(text)
	for _, signal := range autoDebitSignals {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}
