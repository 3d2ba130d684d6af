package extract

import "fmt"

// buildExtractionPrompt asks the oracle for a single JSON object describing
// the financial obligation in the email, if any.
func buildExtractionPrompt(text string) string {
	return fmt.Sprintf(`Extract financial payment information from the following email and return a JSON object with these fields:

{
  "merchant": "Name of the service provider or merchant, or empty string if none",
  "amount": "Numeric payment amount as a string, or empty string if none",
  "currency": "3-letter currency code, or empty string if unclear",
  "due_date": "Due date in YYYY-MM-DD format, or empty string if none",
  "entity_type": "subscription|bill|loan, or empty string if unclear",
  "category": "Category hint, or empty string",
  "auto_debit": true or false,
  "billing_cycle": "monthly|quarterly|yearly|one-time, or empty string",
  "principal_amount": "Principal for loan installments, or empty string",
  "interest_amount": "Interest for loan installments, or empty string",
  "late_fee": "Late fee if mentioned, or empty string",
  "confidence_score": 0.0 to 1.0
}

If the email has no actionable payment information, return empty strings for merchant and amount.
Return only valid JSON, no additional text.

Email:
%s`, text)
}
