package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

// SaveObligation upserts an obligation and its source email set in one
// transaction. Amounts are stored as decimal strings to avoid float
// round-tripping.
func (s *SQLiteStorage) SaveObligation(ctx context.Context, o *model.ObligationRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateObligation(o); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", common.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO obligations (
			id, user_id, merchant, amount, currency, due_date, entity_type,
			category, auto_debit, status, confidence, billing_cycle,
			principal, interest, late_fee, first_seen_at, last_updated_at,
			schema_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			merchant = excluded.merchant,
			amount = excluded.amount,
			currency = excluded.currency,
			due_date = excluded.due_date,
			entity_type = excluded.entity_type,
			category = excluded.category,
			auto_debit = excluded.auto_debit,
			status = excluded.status,
			confidence = excluded.confidence,
			billing_cycle = excluded.billing_cycle,
			principal = excluded.principal,
			interest = excluded.interest,
			late_fee = excluded.late_fee,
			last_updated_at = excluded.last_updated_at,
			schema_version = excluded.schema_version`,
		o.ID, o.UserID, o.Merchant, o.Amount.String(), o.Currency,
		nullTime(o.DueDate), string(o.Type), o.Category, o.AutoDebit,
		string(o.Status), o.Confidence, o.BillingCycle,
		nullDecimal(o.Principal), nullDecimal(o.Interest), nullDecimal(o.LateFee),
		o.FirstSeenAt, o.LastUpdatedAt, o.SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to save obligation %s: %w", o.ID, err)
	}

	for _, emailID := range o.SourceEmailIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO obligation_sources (obligation_id, email_id)
			VALUES (?, ?)`, o.ID, emailID)
		if err != nil {
			return fmt.Errorf("failed to save source %s for obligation %s: %w", emailID, o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit obligation %s: %w", o.ID, err)
	}

	return nil
}

// GetObligation retrieves a single obligation by id.
func (s *SQLiteStorage) GetObligation(ctx context.Context, id string) (*model.ObligationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, obligationSelect+` WHERE id = ?`, id)
	o, err := scanObligation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrObligationNotFound
		}
		return nil, err
	}

	if err := s.loadSources(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetObligationsByUser returns every obligation for a user.
func (s *SQLiteStorage) GetObligationsByUser(ctx context.Context, userID string) ([]model.ObligationRecord, error) {
	return s.ListObligations(ctx, userID, service.ObligationFilter{})
}

// ListObligations returns a user's obligations, optionally filtered by
// entity type and category.
func (s *SQLiteStorage) ListObligations(ctx context.Context, userID string, filter service.ObligationFilter) ([]model.ObligationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := obligationSelect + ` WHERE user_id = ?`
	args := []any{userID}

	if filter.Type != "" {
		query += ` AND entity_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY due_date IS NULL, due_date, merchant`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query obligations: %v", common.ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var obligations []model.ObligationRecord
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate obligations: %w", err)
	}

	for i := range obligations {
		if err := s.loadSources(ctx, &obligations[i]); err != nil {
			return nil, err
		}
	}

	return obligations, nil
}

const obligationSelect = `
	SELECT id, user_id, merchant, amount, currency, due_date, entity_type,
	       category, auto_debit, status, confidence, billing_cycle,
	       principal, interest, late_fee, first_seen_at, last_updated_at,
	       schema_version
	FROM obligations`

// scanner abstracts sql.Row and sql.Rows for scanObligation.
type scanner interface {
	Scan(dest ...any) error
}

func scanObligation(row scanner) (*model.ObligationRecord, error) {
	var o model.ObligationRecord
	var amount string
	var dueDate sql.NullTime
	var billingCycle sql.NullString
	var principal, interest, lateFee sql.NullString
	var entityType, status string

	err := row.Scan(&o.ID, &o.UserID, &o.Merchant, &amount, &o.Currency,
		&dueDate, &entityType, &o.Category, &o.AutoDebit, &status,
		&o.Confidence, &billingCycle, &principal, &interest, &lateFee,
		&o.FirstSeenAt, &o.LastUpdatedAt, &o.SchemaVersion)
	if err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("obligation %s has corrupt amount %q: %w", o.ID, amount, err)
	}
	o.Amount = parsed

	o.Type = model.EntityType(entityType)
	o.Status = model.ObligationStatus(status)
	o.BillingCycle = billingCycle.String

	if dueDate.Valid {
		t := dueDate.Time
		o.DueDate = &t
	}
	o.Principal = parseNullDecimal(principal)
	o.Interest = parseNullDecimal(interest)
	o.LateFee = parseNullDecimal(lateFee)

	return &o, nil
}

func (s *SQLiteStorage) loadSources(ctx context.Context, o *model.ObligationRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email_id FROM obligation_sources WHERE obligation_id = ? ORDER BY email_id`, o.ID)
	if err != nil {
		return fmt.Errorf("failed to query sources for %s: %w", o.ID, err)
	}
	defer func() { _ = rows.Close() }()

	o.SourceEmailIDs = o.SourceEmailIDs[:0]
	for rows.Next() {
		var emailID string
		if err := rows.Scan(&emailID); err != nil {
			return err
		}
		o.SourceEmailIDs = append(o.SourceEmailIDs, emailID)
	}
	return rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}
