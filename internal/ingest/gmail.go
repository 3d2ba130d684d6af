// Package ingest provides inbox sources for processing runs. The Gmail
// source is the production path; the mock inbox backs tests and local
// runs without credentials.
package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// GmailConfig holds OAuth2 credentials for the Gmail API. Tokens are
// obtained out of band; this client only consumes them.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
}

// GmailInbox fetches financial emails from a user's Gmail account.
type GmailInbox struct {
	svc *gmail.Service
}

// NewGmailInbox builds a Gmail client from stored OAuth tokens. The
// token source refreshes the access token transparently when it expires.
func NewGmailInbox(ctx context.Context, cfg GmailConfig) (*GmailInbox, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("gmail client credentials are required: %w", common.ErrMissingConfig)
	}
	if cfg.RefreshToken == "" && cfg.AccessToken == "" {
		return nil, fmt.Errorf("gmail tokens are required: %w", common.ErrMissingConfig)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &GmailInbox{svc: svc}, nil
}

// Fetch searches the authenticated mailbox for financial emails received
// after since and returns up to maxCount of them. Individual messages
// that fail to load are logged and skipped; only the search itself is
// fatal.
func (g *GmailInbox) Fetch(ctx context.Context, userID string, since time.Time, maxCount int) ([]model.RawEmail, error) {
	query := buildFinancialQuery(since)

	call := g.svc.Users.Messages.List("me").Q(query).Context(ctx)
	if maxCount > 0 {
		call = call.MaxResults(int64(maxCount))
	}

	list, err := call.Do()
	if err != nil {
		return nil, classifyGmailError(fmt.Errorf("gmail search for user %s: %w", userID, err))
	}

	slog.Debug("Gmail search returned",
		"user_id", userID,
		"messages", len(list.Messages))

	emails := make([]model.RawEmail, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := g.svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			slog.Warn("Failed to fetch message",
				"user_id", userID,
				"message_id", ref.Id,
				"error", err)
			continue
		}

		email, ok := parseMessage(msg)
		if !ok {
			continue
		}
		emails = append(emails, email)
	}

	return emails, nil
}

// financialSenders covers banks, card networks, payment apps,
// subscription services, utilities, and lenders commonly seen in Indian
// inboxes.
var financialSenders = []string{
	"hdfc", "icici", "sbi", "axis", "kotak", "pnb", "canara",
	"yes", "indus", "rbl", "idfc", "dbs",
	"americanexpress", "amex", "mastercard", "visa",
	"paytm", "phonepe", "gpay", "amazon", "flipkart", "razorpay",
	"mobikwik", "freecharge", "airtel", "jio", "vodafone",
	"netflix", "prime", "hotstar", "spotify", "youtube", "disney",
	"zomato", "swiggy", "uber", "ola", "bookmyshow",
	"bses", "tata", "reliance", "adani", "mahanagar",
	"zerodha", "groww", "upstox", "lic", "bajaj",
}

var financialKeywords = []string{
	"bill", "invoice", "payment", "due", "statement", "receipt",
	"subscription", "renewal", "emi", "loan", "credit", "debit",
	"outstanding", "balance", "transaction", "refund", "charge",
}

// buildFinancialQuery composes the Gmail search expression: a known
// financial sender AND a billing keyword, bounded by the since date.
func buildFinancialQuery(since time.Time) string {
	senders := make([]string, len(financialSenders))
	for i, s := range financialSenders {
		senders[i] = "from:" + s
	}

	return fmt.Sprintf("(%s) AND (%s) after:%s",
		strings.Join(senders, " OR "),
		strings.Join(financialKeywords, " OR "),
		since.Format("2006/01/02"))
}

func parseMessage(msg *gmail.Message) (model.RawEmail, bool) {
	if msg == nil || msg.Payload == nil {
		return model.RawEmail{}, false
	}

	email := model.RawEmail{
		ID:         msg.Id,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}

	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			email.Subject = header.Value
		case "from":
			email.From = header.Value
		}
	}

	email.Body = extractBody(msg.Payload)
	if email.Body == "" {
		email.Body = msg.Snippet
	}
	if email.Body == "" && email.Subject == "" {
		return model.RawEmail{}, false
	}

	return email, true
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// extractBody pulls text content out of a message payload, preferring
// plain text parts over HTML.
func extractBody(payload *gmail.MessagePart) string {
	var plain, html strings.Builder
	collectParts(payload, &plain, &html)

	if plain.Len() > 0 {
		return strings.TrimSpace(plain.String())
	}
	// Crude tag strip only; real markup cleanup happens downstream in
	// the normalizer.
	return strings.TrimSpace(tagPattern.ReplaceAllString(html.String(), " "))
}

func collectParts(part *gmail.MessagePart, plain, html *strings.Builder) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		if decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(part.Body.Data); err == nil {
			switch part.MimeType {
			case "text/plain":
				plain.Write(decoded)
			case "text/html":
				html.Write(decoded)
			}
		}
	}

	for _, child := range part.Parts {
		collectParts(child, plain, html)
	}
}

// classifyGmailError maps API failures onto the retry taxonomy: rate
// limits and server errors are transient, everything else is not.
func classifyGmailError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &common.RetryableError{Err: common.ErrRateLimit, Retryable: true}
		case apiErr.Code >= 500:
			return &common.RetryableError{Err: err, Retryable: true}
		}
		return err
	}
	// Network-level failures carry no HTTP status; treat as transient.
	if strings.Contains(err.Error(), "connection") || strings.Contains(err.Error(), "timeout") {
		return &common.RetryableError{Err: err, Retryable: true}
	}
	return err
}
