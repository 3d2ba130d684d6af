package normalize

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

func rawEmail(body string) model.RawEmail {
	return model.RawEmail{
		ID:         "email-1",
		From:       "billing@netflix.com",
		Subject:    "Your Netflix bill",
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

func TestEmailFormatsHeader(t *testing.T) {
	normalized, err := Email(rawEmail("Your payment of ₹649 is due on 2025-09-15."))
	require.NoError(t, err)

	assert.Equal(t, "email-1", normalized.SourceID)
	assert.True(t, strings.HasPrefix(normalized.Text, "EMAIL SUBJECT: Your Netflix bill\nFROM: billing@netflix.com\nCONTENT: "))
	assert.Contains(t, normalized.Text, "₹649")
}

func TestEmailStripsMarkup(t *testing.T) {
	body := `<html><head><title>ignore</title></head><body>
		<p>Your Netflix subscription of <b>₹649.00</b> renews soon.</p>
		<script>trackPixel();</script>
		<style>.btn { color: red; }</style>
	</body></html>`

	normalized, err := Email(rawEmail(body))
	require.NoError(t, err)

	assert.Contains(t, normalized.Text, "₹649.00")
	assert.NotContains(t, normalized.Text, "<p>")
	assert.NotContains(t, normalized.Text, "trackPixel")
	assert.NotContains(t, normalized.Text, "color: red")
	assert.NotContains(t, normalized.Text, "ignore")
}

func TestEmailStripsQuotedReplies(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		absent  string
		present string
	}{
		{
			name:    "reply marker",
			body:    "Payment received for your bill.\nOn Mon, Aug 4, 2025 at 10:12 AM Support wrote:\nEarlier thread content here",
			absent:  "Earlier thread content",
			present: "Payment received",
		},
		{
			name:    "quoted lines",
			body:    "New charge: ₹1,200\n> old quoted line about something\n>> even older",
			absent:  "old quoted line",
			present: "New charge",
		},
		{
			name:    "signature block",
			body:    "Your bill is attached.\n-- \nRegards,\nThe Billing Team",
			absent:  "The Billing Team",
			present: "bill is attached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, err := Email(rawEmail(tt.body))
			require.NoError(t, err)
			assert.NotContains(t, normalized.Text, tt.absent)
			assert.Contains(t, normalized.Text, tt.present)
		})
	}
}

func TestEmailStripsFooterNoise(t *testing.T) {
	body := "Amount due: ₹500\nUnsubscribe from these notifications at any time\nFollow us on social media"

	normalized, err := Email(rawEmail(body))
	require.NoError(t, err)

	assert.Contains(t, normalized.Text, "₹500")
	assert.NotContains(t, normalized.Text, "Unsubscribe")
	assert.NotContains(t, normalized.Text, "Follow us")
}

func TestEmailCollapsesWhitespace(t *testing.T) {
	normalized, err := Email(rawEmail("Amount   due:\n\n\t₹500   today"))
	require.NoError(t, err)

	assert.Contains(t, normalized.Text, "Amount due: ₹500 today")
}

func TestEmailTruncatesLongBodies(t *testing.T) {
	normalized, err := Email(rawEmail(strings.Repeat("bill payment due ", 500)))
	require.NoError(t, err)

	content := normalized.Text[strings.Index(normalized.Text, "CONTENT: ")+len("CONTENT: "):]
	assert.LessOrEqual(t, len(content), maxContentLength)
}

func TestEmailTruncationPreservesRuneBoundaries(t *testing.T) {
	// Three bytes per rupee sign, so the byte limit lands mid-rune.
	normalized, err := Email(rawEmail(strings.Repeat("₹", 1500)))
	require.NoError(t, err)

	content := normalized.Text[strings.Index(normalized.Text, "CONTENT: ")+len("CONTENT: "):]
	assert.LessOrEqual(t, len(content), maxContentLength)
	assert.True(t, utf8.ValidString(content))
	assert.True(t, strings.HasSuffix(content, "₹"))
}

func TestEmailRejectsInvalidUTF8(t *testing.T) {
	_, err := Email(rawEmail("bad bytes: \xff\xfe"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid UTF-8")
}
