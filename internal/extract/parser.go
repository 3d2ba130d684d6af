package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// flexString tolerates the oracle emitting numbers, strings, or null for
// fields we expect as strings.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	*f = flexString(s)
	return nil
}

// flexBool tolerates true/false, "true"/"false", and null.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	*f = flexBool(strings.EqualFold(s, "true"))
	return nil
}

// candidateResponse mirrors the JSON shape the oracle is prompted for.
type candidateResponse struct {
	Merchant     flexString `json:"merchant"`
	Amount       flexString `json:"amount"`
	Currency     flexString `json:"currency"`
	DueDate      flexString `json:"due_date"`
	EntityType   flexString `json:"entity_type"`
	Category     flexString `json:"category"`
	BillingCycle flexString `json:"billing_cycle"`
	Principal    flexString `json:"principal_amount"`
	Interest     flexString `json:"interest_amount"`
	LateFee      flexString `json:"late_fee"`
	Confidence   float64    `json:"confidence_score"`
	AutoDebit    flexBool   `json:"auto_debit"`
}

// ParseCandidate parses the oracle's raw response into a candidate record.
// A syntactically invalid response is an error (and retryable upstream); a
// valid but semantically empty one parses into an Empty() candidate.
func ParseCandidate(content string, sourceID, sourceText string) (*model.CandidateRecord, error) {
	cleaned := stripMarkdownFence(content)

	var resp candidateResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("malformed oracle response: %w", err)
	}

	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return &model.CandidateRecord{
		SourceID:     sourceID,
		SourceText:   sourceText,
		Merchant:     strings.TrimSpace(string(resp.Merchant)),
		Amount:       strings.TrimSpace(string(resp.Amount)),
		Currency:     strings.ToUpper(strings.TrimSpace(string(resp.Currency))),
		DueDate:      strings.TrimSpace(string(resp.DueDate)),
		TypeHint:     strings.ToLower(strings.TrimSpace(string(resp.EntityType))),
		CategoryHint: strings.ToLower(strings.TrimSpace(string(resp.Category))),
		BillingCycle: strings.ToLower(strings.TrimSpace(string(resp.BillingCycle))),
		Principal:    strings.TrimSpace(string(resp.Principal)),
		Interest:     strings.TrimSpace(string(resp.Interest)),
		LateFee:      strings.TrimSpace(string(resp.LateFee)),
		AutoDebit:    bool(resp.AutoDebit),
		Confidence:   confidence,
	}, nil
}

// stripMarkdownFence removes a ```json ... ``` wrapper some models insist
// on adding despite instructions.
func stripMarkdownFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
