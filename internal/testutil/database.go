// Package testutil provides shared test helpers: an in-memory migrated
// database and obligation fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
	"github.com/Veraticus/the-bills-must-flow/internal/storage"
)

// TestDB wraps an in-memory migrated storage for tests.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates an in-memory SQLite database, runs migrations, and
// registers cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// MustSaveObligation saves an obligation or fails the test.
func (db *TestDB) MustSaveObligation(o *model.ObligationRecord) {
	db.t.Helper()
	if err := db.Storage.SaveObligation(context.Background(), o); err != nil {
		db.t.Fatalf("failed to save obligation %s: %v", o.ID, err)
	}
}

// MustSaveRun saves a run or fails the test.
func (db *TestDB) MustSaveRun(r *model.RunRecord) {
	db.t.Helper()
	if err := db.Storage.SaveRun(context.Background(), r); err != nil {
		db.t.Fatalf("failed to save run %s: %v", r.ID, err)
	}
}

// Obligation builds a valid pending obligation fixture. Callers adjust
// fields after the fact for scenario-specific shapes.
func Obligation(userID, merchant, amount string) model.ObligationRecord {
	now := time.Now().UTC().Truncate(time.Second)
	due := now.AddDate(0, 0, 14)

	return model.ObligationRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		Merchant:       merchant,
		Amount:         decimal.RequireFromString(amount),
		Currency:       "INR",
		DueDate:        &due,
		Type:           model.TypeBill,
		Category:       "utility",
		Status:         model.StatusPending,
		Confidence:     0.9,
		SourceEmailIDs: []string{"email-" + uuid.NewString()},
		FirstSeenAt:    now,
		LastUpdatedAt:  now,
		SchemaVersion:  model.SchemaVersion,
	}
}

// RawEmail builds a raw email fixture with the given body.
func RawEmail(id, subject, body string) model.RawEmail {
	return model.RawEmail{
		ID:         id,
		From:       "billing@example.com",
		Subject:    subject,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}
}
