package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validObligation() ObligationRecord {
	now := time.Now().UTC()
	return ObligationRecord{
		ID:             "obl-1",
		UserID:         "user-1",
		Merchant:       "Netflix",
		Amount:         decimal.NewFromInt(649),
		Currency:       "INR",
		Type:           TypeSubscription,
		Category:       "entertainment",
		Status:         StatusPending,
		Confidence:     0.9,
		SourceEmailIDs: []string{"e1"},
		FirstSeenAt:    now,
		LastUpdatedAt:  now,
		SchemaVersion:  SchemaVersion,
	}
}

func TestObligationValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *ObligationRecord)
		wantErr bool
	}{
		{"valid", func(_ *ObligationRecord) {}, false},
		{"zero amount is legal", func(o *ObligationRecord) { o.Amount = decimal.Zero }, false},
		{"missing id", func(o *ObligationRecord) { o.ID = "" }, true},
		{"missing user", func(o *ObligationRecord) { o.UserID = "" }, true},
		{"missing merchant", func(o *ObligationRecord) { o.Merchant = "" }, true},
		{"negative amount", func(o *ObligationRecord) { o.Amount = decimal.NewFromInt(-1) }, true},
		{"short currency", func(o *ObligationRecord) { o.Currency = "RS" }, true},
		{"bad type", func(o *ObligationRecord) { o.Type = "invoice" }, true},
		{"unknown category", func(o *ObligationRecord) { o.Category = "streaming" }, true},
		{"bad status", func(o *ObligationRecord) { o.Status = "unpaid" }, true},
		{"confidence above one", func(o *ObligationRecord) { o.Confidence = 1.2 }, true},
		{"confidence below zero", func(o *ObligationRecord) { o.Confidence = -0.1 }, true},
		{"no sources", func(o *ObligationRecord) { o.SourceEmailIDs = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validObligation()
			tt.mutate(&o)

			err := o.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEntityTypeValid(t *testing.T) {
	assert.True(t, TypeSubscription.Valid())
	assert.True(t, TypeBill.Valid())
	assert.True(t, TypeLoan.Valid())
	assert.False(t, EntityType("invoice").Valid())
	assert.False(t, EntityType("").Valid())
}

func TestKnownCategory(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, KnownCategory(c))
	}
	assert.False(t, KnownCategory("streaming"))
	assert.False(t, KnownCategory(""))
}

func TestSourceSet(t *testing.T) {
	o := validObligation()

	require.True(t, o.HasSource("e1"))
	assert.False(t, o.HasSource("e2"))

	o.AddSource("e2")
	assert.True(t, o.HasSource("e2"))

	o.AddSource("e2")
	assert.Len(t, o.SourceEmailIDs, 2)
}

func TestRunStatusTerminal(t *testing.T) {
	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.True(t, RunPartiallyCompleted.Terminal())
	assert.False(t, RunCreated.Terminal())
	assert.False(t, RunExtracting.Terminal())
}

func TestRecordFailure(t *testing.T) {
	r := RunRecord{ID: "run-1", UserID: "user-1", Status: RunValidating}
	r.RecordFailure("e1", StageValidate, "negative amount")
	r.RecordFailure("e2", StageExtract, "oracle unavailable")

	assert.Equal(t, 2, r.Counters.Failed)
	require.Len(t, r.Failures, 2)
	assert.Equal(t, StageValidate, r.Failures[0].Stage)
}
