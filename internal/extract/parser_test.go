package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, c *candidateCheck)
		wantErr bool
	}{
		{
			name: "complete response",
			content: `{
				"merchant": "Netflix",
				"amount": "649.00",
				"currency": "inr",
				"due_date": "2025-09-15",
				"entity_type": "Subscription",
				"category": "ENTERTAINMENT",
				"auto_debit": true,
				"billing_cycle": "Monthly",
				"confidence_score": 0.92
			}`,
			check: func(t *testing.T, c *candidateCheck) {
				assert.Equal(t, "Netflix", c.Merchant)
				assert.Equal(t, "649.00", c.Amount)
				assert.Equal(t, "INR", c.Currency)
				assert.Equal(t, "subscription", c.TypeHint)
				assert.Equal(t, "entertainment", c.CategoryHint)
				assert.Equal(t, "monthly", c.BillingCycle)
				assert.True(t, c.AutoDebit)
				assert.InDelta(t, 0.92, c.Confidence, 0.001)
			},
		},
		{
			name:    "markdown fenced",
			content: "```json\n{\"merchant\": \"Airtel\", \"amount\": \"599\", \"confidence_score\": 0.8}\n```",
			check: func(t *testing.T, c *candidateCheck) {
				assert.Equal(t, "Airtel", c.Merchant)
				assert.Equal(t, "599", c.Amount)
			},
		},
		{
			name:    "numeric amount and string bool",
			content: `{"merchant": "Jio", "amount": 399.5, "auto_debit": "true", "confidence_score": 0.7}`,
			check: func(t *testing.T, c *candidateCheck) {
				assert.Equal(t, "399.5", c.Amount)
				assert.True(t, c.AutoDebit)
			},
		},
		{
			name:    "null fields",
			content: `{"merchant": "HDFC", "amount": "1200", "due_date": null, "currency": null, "confidence_score": 0.5}`,
			check: func(t *testing.T, c *candidateCheck) {
				assert.Empty(t, c.DueDate)
				assert.Empty(t, c.Currency)
			},
		},
		{
			name:    "confidence clamped high",
			content: `{"merchant": "X", "amount": "1", "confidence_score": 3.2}`,
			check: func(t *testing.T, c *candidateCheck) {
				assert.Equal(t, 1.0, c.Confidence)
			},
		},
		{
			name:    "confidence clamped low",
			content: `{"merchant": "X", "amount": "1", "confidence_score": -0.4}`,
			check: func(t *testing.T, c *candidateCheck) {
				assert.Equal(t, 0.0, c.Confidence)
			},
		},
		{
			name:    "semantically empty",
			content: `{"merchant": "", "amount": "", "confidence_score": 0}`,
			check: func(t *testing.T, c *candidateCheck) {
				assert.True(t, c.Empty)
			},
		},
		{
			name:    "malformed json",
			content: `{"merchant": "Netflix", "amount":`,
			wantErr: true,
		},
		{
			name:    "prose instead of json",
			content: "I could not find any financial information in this email.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, err := ParseCandidate(tt.content, "email-1", "some text")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "email-1", candidate.SourceID)
			assert.Equal(t, "some text", candidate.SourceText)
			tt.check(t, &candidateCheck{
				Merchant:     candidate.Merchant,
				Amount:       candidate.Amount,
				Currency:     candidate.Currency,
				DueDate:      candidate.DueDate,
				TypeHint:     candidate.TypeHint,
				CategoryHint: candidate.CategoryHint,
				BillingCycle: candidate.BillingCycle,
				AutoDebit:    candidate.AutoDebit,
				Confidence:   candidate.Confidence,
				Empty:        candidate.Empty(),
			})
		})
	}
}

// candidateCheck flattens the fields the table assertions care about.
type candidateCheck struct {
	Merchant     string
	Amount       string
	Currency     string
	DueDate      string
	TypeHint     string
	CategoryHint string
	BillingCycle string
	AutoDebit    bool
	Confidence   float64
	Empty        bool
}

func TestStripMarkdownFence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripMarkdownFence(tt.content))
		})
	}
}
