// Package validate enforces structural and semantic constraints on
// candidate records before they enter classification. Validation failures
// reflect oracle output quality, not transient errors; they are recorded
// and never retried.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Rule names carried on validation failures.
const (
	RuleEmptyMerchant   = "empty-merchant"
	RuleMissingAmount   = "missing-amount"
	RuleInvalidAmount   = "invalid-amount"
	RuleNegativeAmount  = "negative-amount"
	RuleUnknownCurrency = "unknown-currency"
	RuleInvalidDueDate  = "invalid-due-date"
	RuleDueDateSkew     = "due-date-out-of-range"
)

// Failure is a validation error tagged with the specific violated rule.
type Failure struct {
	Rule   string
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", f.Rule, f.Detail)
}

func fail(rule, format string, args ...any) *Failure {
	return &Failure{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// recognizedCurrencies is the set of ISO 4217 codes we accept from the
// oracle. Not exhaustive; grown as real emails demand.
var recognizedCurrencies = map[string]struct{}{
	"INR": {}, "USD": {}, "EUR": {}, "GBP": {}, "AUD": {}, "CAD": {},
	"SGD": {}, "JPY": {}, "AED": {}, "CHF": {}, "CNY": {}, "NZD": {},
}

// domesticMerchants are providers that bill in the default currency; when
// the oracle omits the currency for one of these, we assume the default
// rather than rejecting the record.
var domesticMerchants = []string{
	"hdfc", "icici", "sbi", "axis", "airtel", "jio", "vodafone",
	"bses", "tata", "reliance", "bharti", "paytm", "bajaj",
}

// Config holds the validator's tunables.
type Config struct {
	DefaultCurrency  string
	MaxDateSkewYears int
}

// DefaultConfig returns the default validator configuration.
func DefaultConfig() Config {
	return Config{
		DefaultCurrency:  "INR",
		MaxDateSkewYears: 3,
	}
}

// Validator checks candidate records against the schema rules.
type Validator struct {
	cfg Config
	now func() time.Time
}

// New creates a validator with the given configuration.
func New(cfg Config) *Validator {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "INR"
	}
	if cfg.MaxDateSkewYears <= 0 {
		cfg.MaxDateSkewYears = 3
	}
	return &Validator{cfg: cfg, now: time.Now}
}

// Validate checks a candidate and returns its validated form or a
// rule-tagged *Failure. It is total: any candidate yields exactly one of
// the two, never a panic.
func (v *Validator) Validate(c *model.CandidateRecord) (*model.ValidatedRecord, error) {
	merchant := strings.TrimSpace(c.Merchant)
	if merchant == "" {
		return nil, fail(RuleEmptyMerchant, "merchant is empty after trimming")
	}

	if strings.TrimSpace(c.Amount) == "" {
		return nil, fail(RuleMissingAmount, "no amount extracted for %q", merchant)
	}

	amount, err := parseAmount(c.Amount)
	if err != nil {
		return nil, fail(RuleInvalidAmount, "amount %q does not parse: %v", c.Amount, err)
	}
	if amount.IsNegative() {
		return nil, fail(RuleNegativeAmount, "amount %s is negative", amount)
	}

	currency := c.Currency
	if currency == "" {
		if !v.isDomesticMerchant(merchant) {
			return nil, fail(RuleUnknownCurrency, "no currency for merchant %q", merchant)
		}
		currency = v.cfg.DefaultCurrency
	}
	if _, ok := recognizedCurrencies[currency]; !ok {
		return nil, fail(RuleUnknownCurrency, "currency %q is not recognized", currency)
	}

	var dueDate *time.Time
	if c.DueDate != "" {
		parsed, err := parseDate(c.DueDate)
		if err != nil {
			return nil, fail(RuleInvalidDueDate, "due date %q does not parse: %v", c.DueDate, err)
		}

		skew := time.Duration(v.cfg.MaxDateSkewYears) * 365 * 24 * time.Hour
		now := v.now()
		if parsed.Before(now.Add(-skew)) || parsed.After(now.Add(skew)) {
			return nil, fail(RuleDueDateSkew, "due date %s is more than %d years from now",
				parsed.Format("2006-01-02"), v.cfg.MaxDateSkewYears)
		}
		dueDate = &parsed
	}

	confidence := c.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return &model.ValidatedRecord{
		SourceID:     c.SourceID,
		SourceText:   c.SourceText,
		Merchant:     merchant,
		Amount:       amount,
		Currency:     currency,
		DueDate:      dueDate,
		TypeHint:     c.TypeHint,
		CategoryHint: c.CategoryHint,
		BillingCycle: c.BillingCycle,
		Principal:    parseOptionalAmount(c.Principal),
		Interest:     parseOptionalAmount(c.Interest),
		LateFee:      parseOptionalAmount(c.LateFee),
		AutoDebit:    c.AutoDebit,
		Confidence:   confidence,
	}, nil
}

func (v *Validator) isDomesticMerchant(merchant string) bool {
	lower := strings.ToLower(merchant)
	for _, known := range domesticMerchants {
		if strings.Contains(lower, known) {
			return true
		}
	}
	return false
}

// parseAmount handles the formatting the oracle passes through from email
// bodies: currency symbols, thousands separators, stray whitespace.
func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "₹")
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimPrefix(cleaned, "Rs.")
	cleaned = strings.TrimPrefix(cleaned, "Rs")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)

	return decimal.NewFromString(cleaned)
}

// parseOptionalAmount parses supplementary amounts (principal, interest,
// late fee). Garbage in an optional field drops the field, not the record.
func parseOptionalAmount(raw string) *decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	amount, err := parseAmount(raw)
	if err != nil || amount.IsNegative() {
		return nil
	}
	return &amount
}

// dateFormats are tried in order when parsing due dates.
var dateFormats = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	time.RFC3339,
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, format := range dateFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}
