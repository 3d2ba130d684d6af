package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// SaveRun upserts a run record with its failure list and resulting
// obligation ids. Failures are rewritten wholesale; the list is small and
// only the run coordinator writes it.
func (s *SQLiteStorage) SaveRun(ctx context.Context, r *model.RunRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(r); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", common.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	c := r.Counters
	sum := r.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, user_id, started_at, completed_at, status,
			fetched, normalized, extracted, validated, classified,
			deduplicated, stored, failed,
			subscriptions, bills, loans, total_amount, currency
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			status = excluded.status,
			fetched = excluded.fetched,
			normalized = excluded.normalized,
			extracted = excluded.extracted,
			validated = excluded.validated,
			classified = excluded.classified,
			deduplicated = excluded.deduplicated,
			stored = excluded.stored,
			failed = excluded.failed,
			subscriptions = excluded.subscriptions,
			bills = excluded.bills,
			loans = excluded.loans,
			total_amount = excluded.total_amount,
			currency = excluded.currency`,
		r.ID, r.UserID, r.StartedAt, nullTime(r.CompletedAt), string(r.Status),
		c.Fetched, c.Normalized, c.Extracted, c.Validated, c.Classified,
		c.Deduplicated, c.Stored, c.Failed,
		sum.Subscriptions, sum.Bills, sum.Loans, sum.TotalAmount, sum.Currency)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM run_failures WHERE run_id = ?`, r.ID); err != nil {
		return fmt.Errorf("failed to clear failures for run %s: %w", r.ID, err)
	}
	for _, f := range r.Failures {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_failures (run_id, source_id, stage, reason)
			VALUES (?, ?, ?, ?)`, r.ID, f.SourceID, string(f.Stage), f.Reason)
		if err != nil {
			return fmt.Errorf("failed to save failure for run %s: %w", r.ID, err)
		}
	}

	for _, obligationID := range r.ObligationIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO run_obligations (run_id, obligation_id)
			VALUES (?, ?)`, r.ID, obligationID)
		if err != nil {
			return fmt.Errorf("failed to link obligation %s to run %s: %w", obligationID, r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", r.ID, err)
	}

	return nil
}

// GetRun retrieves a point-in-time snapshot of a run.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, runSelect+` WHERE id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	if err := s.loadRunDetails(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRunsByUser returns a user's runs, most recent first.
func (s *SQLiteStorage) GetRunsByUser(ctx context.Context, userID string) ([]model.RunRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, runSelect+` WHERE user_id = ? ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query runs: %v", common.ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	for i := range runs {
		if err := s.loadRunDetails(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

const runSelect = `
	SELECT id, user_id, started_at, completed_at, status,
	       fetched, normalized, extracted, validated, classified,
	       deduplicated, stored, failed,
	       subscriptions, bills, loans, total_amount, currency
	FROM runs`

func scanRun(row scanner) (*model.RunRecord, error) {
	var r model.RunRecord
	var completedAt sql.NullTime
	var status string

	err := row.Scan(&r.ID, &r.UserID, &r.StartedAt, &completedAt, &status,
		&r.Counters.Fetched, &r.Counters.Normalized, &r.Counters.Extracted,
		&r.Counters.Validated, &r.Counters.Classified, &r.Counters.Deduplicated,
		&r.Counters.Stored, &r.Counters.Failed,
		&r.Summary.Subscriptions, &r.Summary.Bills, &r.Summary.Loans,
		&r.Summary.TotalAmount, &r.Summary.Currency)
	if err != nil {
		return nil, err
	}

	r.Status = model.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}

	return &r, nil
}

func (s *SQLiteStorage) loadRunDetails(ctx context.Context, r *model.RunRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, stage, reason FROM run_failures WHERE run_id = ?`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to query failures for run %s: %w", r.ID, err)
	}
	defer func() { _ = rows.Close() }()

	r.Failures = r.Failures[:0]
	for rows.Next() {
		var f model.ItemFailure
		var stage string
		if err := rows.Scan(&f.SourceID, &stage, &f.Reason); err != nil {
			return err
		}
		f.Stage = model.Stage(stage)
		r.Failures = append(r.Failures, f)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	obligationRows, err := s.db.QueryContext(ctx,
		`SELECT obligation_id FROM run_obligations WHERE run_id = ? ORDER BY obligation_id`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to query obligations for run %s: %w", r.ID, err)
	}
	defer func() { _ = obligationRows.Close() }()

	r.ObligationIDs = r.ObligationIDs[:0]
	for obligationRows.Next() {
		var id string
		if err := obligationRows.Scan(&id); err != nil {
			return err
		}
		r.ObligationIDs = append(r.ObligationIDs, id)
	}
	return obligationRows.Err()
}
