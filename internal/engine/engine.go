// Package engine implements the run coordinator: it drives a batch of
// emails through normalization, extraction, validation, classification,
// and reconciliation, tracking per-item outcomes and landing each run on
// exactly one terminal status.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-bills-must-flow/internal/classify"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/dedup"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/normalize"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

// BatchConfig describes one run's fetch window.
type BatchConfig struct {
	// Since bounds how far back the inbox fetch reaches.
	Since time.Time

	// MaxCount caps the number of emails fetched.
	MaxCount int

	// Progress, if set, is called as items resolve during extraction,
	// the stage where a run spends nearly all of its time.
	Progress func(done, total int)
}

// Engine coordinates processing runs.
type Engine struct {
	storage    service.Storage
	inbox      service.Inbox
	extractor  Extractor
	validator  Validator
	reconciler Reconciler
	notifier   service.Notifier
	locks      *userLocks
}

// New creates a run coordinator with the given collaborators.
func New(storage service.Storage, inbox service.Inbox, extractor Extractor, validator Validator, reconciler Reconciler, notifier service.Notifier) *Engine {
	return &Engine{
		storage:    storage,
		inbox:      inbox,
		extractor:  extractor,
		validator:  validator,
		reconciler: reconciler,
		notifier:   notifier,
		locks:      newUserLocks(),
	}
}

// StartRun creates a run in the created state and processes it in the
// background. It returns the run id immediately; poll RunStatus for
// progress.
func (e *Engine) StartRun(ctx context.Context, userID string, cfg BatchConfig) (string, error) {
	run, err := e.createRun(ctx, userID)
	if err != nil {
		return "", err
	}

	// The run outlives the caller's context; cancellation is cooperative
	// via the engine, not the requester.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := e.execute(runCtx, run, cfg); err != nil {
			common.LogError(err, "Run failed", common.Fields{
				"run_id":  run.ID,
				"user_id": userID,
			})
		}
	}()

	return run.ID, nil
}

// Run processes a batch synchronously and returns the terminal run record.
func (e *Engine) Run(ctx context.Context, userID string, cfg BatchConfig) (*model.RunRecord, error) {
	run, err := e.createRun(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, run, cfg)
}

// RunStatus returns a point-in-time snapshot of a run. Safe to poll.
func (e *Engine) RunStatus(ctx context.Context, runID string) (*model.RunRecord, error) {
	return e.storage.GetRun(ctx, runID)
}

// ListObligations returns a user's obligations with optional filters.
func (e *Engine) ListObligations(ctx context.Context, userID string, filter service.ObligationFilter) ([]model.ObligationRecord, error) {
	return e.storage.ListObligations(ctx, userID, filter)
}

func (e *Engine) createRun(ctx context.Context, userID string) (*model.RunRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	run := &model.RunRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: time.Now().UTC(),
		Status:    model.RunCreated,
	}

	if err := e.storage.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	slog.Info("Run created", "run_id", run.ID, "user_id", userID)
	return run, nil
}

// item carries one email through the pipeline stages. Exactly one of the
// stage pointers advances per stage; a failed or dropped item stops
// advancing but stays in the batch for accounting.
type item struct {
	failErr    error
	candidate  *model.CandidateRecord
	validated  *model.ValidatedRecord
	classified *model.ClassifiedRecord
	normalized model.NormalizedEmail
	raw        model.RawEmail
	failStage  model.Stage
	dropped    bool
}

func (it *item) fail(stage model.Stage, err error) {
	it.failStage = stage
	it.failErr = err
}

func (it *item) failed() bool { return it.failErr != nil }

// active reports whether the item is still flowing through the pipeline.
func (it *item) active() bool { return !it.failed() && !it.dropped }

// execute drives a created run to a terminal state. The batch advances
// stage by stage; within a stage items resolve independently and never
// block each other.
func (e *Engine) execute(ctx context.Context, run *model.RunRecord, cfg BatchConfig) (*model.RunRecord, error) {
	// Fetch
	if err := e.advance(ctx, run, model.RunFetching); err != nil {
		return e.abort(run, err)
	}

	emails, err := e.inbox.Fetch(ctx, run.UserID, cfg.Since, cfg.MaxCount)
	if err != nil {
		return e.abort(run, fmt.Errorf("inbox fetch: %w", err))
	}

	run.Counters.Fetched = len(emails)
	items := make([]item, len(emails))
	for i, email := range emails {
		items[i].raw = email
	}

	slog.Info("Fetched batch",
		"run_id", run.ID,
		"emails", len(emails))

	// Normalize (still within the fetching stage: pure, unbounded fan-out)
	runStage(items, func(it *item) {
		normalized, normErr := normalize.Email(it.raw)
		if normErr != nil {
			it.fail(model.StageNormalize, normErr)
			return
		}
		it.normalized = normalized
	})
	run.Counters.Normalized = e.collect(run, items)

	// Extract (bounded by the client's concurrency ceiling)
	if err := e.advance(ctx, run, model.RunExtracting); err != nil {
		return e.abort(run, err)
	}

	var done atomic.Int64
	total := len(items)
	runStage(items, func(it *item) {
		defer func() {
			if cfg.Progress != nil {
				cfg.Progress(int(done.Add(1)), total)
			}
		}()

		candidate, exErr := e.extractor.Extract(ctx, it.normalized)
		if exErr != nil {
			it.fail(model.StageExtract, exErr)
			return
		}
		if candidate.Empty() {
			// No financial content: dropped silently, but the oracle
			// call itself succeeded.
			it.dropped = true
		}
		it.candidate = candidate
	})
	run.Counters.Extracted = e.collect(run, items) + countDropped(items)

	// Validate (pure, unbounded)
	if err := e.advance(ctx, run, model.RunValidating); err != nil {
		return e.abort(run, err)
	}
	runStage(items, func(it *item) {
		validated, valErr := e.validator.Validate(it.candidate)
		if valErr != nil {
			it.fail(model.StageValidate, valErr)
			return
		}
		it.validated = validated
	})
	run.Counters.Validated = e.collect(run, items)

	// Classify (total, never fails)
	if err := e.advance(ctx, run, model.RunClassifying); err != nil {
		return e.abort(run, err)
	}
	runStage(items, func(it *item) {
		classified := classify.Classify(it.validated)
		it.classified = &classified
	})
	run.Counters.Classified = e.collect(run, items)

	// Deduplicate and persist under the user lock: reconciliation is a
	// read-modify-write over the user's record set, and holding the lock
	// through persistence means concurrent runs for the same user
	// observe each other's completed writes in acquisition order.
	if err := e.advance(ctx, run, model.RunDeduplicating); err != nil {
		return e.abort(run, err)
	}

	unlock := e.locks.acquire(run.UserID)
	defer unlock()

	existing, err := e.storage.GetObligationsByUser(ctx, run.UserID)
	if err != nil {
		return e.abort(run, fmt.Errorf("loading existing obligations: %w", err))
	}

	var toSave []*model.ObligationRecord
	for i := range items {
		it := &items[i]
		if !it.active() {
			continue
		}

		decision := e.reconciler.Reconcile(run.UserID, it.classified, existing)
		run.Counters.Deduplicated++

		switch decision.Outcome {
		case dedup.OutcomeDiscard:
			it.dropped = true
			slog.Debug("Discarded duplicate observation",
				"run_id", run.ID,
				"source_id", it.classified.SourceID,
				"reason", decision.Reason)
		case dedup.OutcomeInsert:
			existing = append(existing, *decision.Record)
			toSave = append(toSave, decision.Record)
		case dedup.OutcomeMerge:
			replaceRecord(existing, decision.Record)
			toSave = appendRecord(toSave, decision.Record)
		}
	}

	// Persist
	if err := e.advance(ctx, run, model.RunPersisting); err != nil {
		return e.abort(run, err)
	}

	for _, record := range toSave {
		if saveErr := e.storage.SaveObligation(ctx, record); saveErr != nil {
			// Store failure is run-scoped: abort, keeping whatever was
			// already durably persisted.
			return e.abort(run, fmt.Errorf("persisting obligation %s: %w", record.ID, saveErr))
		}
		run.Counters.Stored++
		run.ObligationIDs = append(run.ObligationIDs, record.ID)
	}

	run.Summary = summarize(toSave)

	return e.finalize(ctx, run)
}

// runStage fans a stage function out over the still-active items and
// waits for every one to resolve.
func runStage(items []item, fn func(*item)) {
	var wg sync.WaitGroup
	for i := range items {
		it := &items[i]
		if !it.active() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(it)
		}()
	}
	wg.Wait()
}

// collect records new failures against the run and returns the number of
// items still flowing after the stage just run. Dropped items are not
// counted; the stage that dropped them folds them into its own counter.
func (e *Engine) collect(run *model.RunRecord, items []item) int {
	active := 0
	for i := range items {
		it := &items[i]
		if it.failErr != nil && it.failStage != "" {
			run.RecordFailure(it.raw.ID, it.failStage, it.failErr.Error())
			// Keep the error for accounting but stop re-recording it.
			it.failStage = ""
			continue
		}
		if it.active() {
			active++
		}
	}
	return active
}

func countDropped(items []item) int {
	dropped := 0
	for i := range items {
		if items[i].dropped {
			dropped++
		}
	}
	return dropped
}

// advance moves the run to the next stage state and persists the
// transition. Cancellation is honored between stages, never mid-item.
func (e *Engine) advance(ctx context.Context, run *model.RunRecord, status model.RunStatus) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run canceled before %s: %w", status, err)
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: cannot advance run %s", common.ErrRunTerminal, run.ID)
	}

	run.Status = status
	if err := e.storage.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("persisting %s transition: %w", status, err)
	}

	slog.Debug("Run advanced", "run_id", run.ID, "status", status)
	return nil
}

// finalize computes the terminal status from per-item outcomes, persists
// it, and hands the entity list to the notifier.
func (e *Engine) finalize(ctx context.Context, run *model.RunRecord) (*model.RunRecord, error) {
	failures := run.Counters.Failed
	successes := run.Counters.Fetched - failures

	switch {
	case failures == 0:
		run.Status = model.RunCompleted
	case successes > 0:
		run.Status = model.RunPartiallyCompleted
	default:
		run.Status = model.RunFailed
	}

	now := time.Now().UTC()
	run.CompletedAt = &now

	if err := e.storage.SaveRun(ctx, run); err != nil {
		return run, fmt.Errorf("persisting terminal run %s: %w", run.ID, err)
	}

	slog.Info("Run finished",
		"run_id", run.ID,
		"status", run.Status,
		"stored", run.Counters.Stored,
		"failed", run.Counters.Failed)

	e.notify(ctx, run)
	return run, nil
}

// abort marks the run failed after an infrastructure error. Whatever was
// already durably persisted stays; there is no run-level rollback.
func (e *Engine) abort(run *model.RunRecord, cause error) (*model.RunRecord, error) {
	run.Status = model.RunFailed
	now := time.Now().UTC()
	run.CompletedAt = &now

	// Best effort: the store itself may be the thing that failed.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.storage.SaveRun(saveCtx, run); err != nil {
		slog.Error("Failed to persist aborted run",
			"run_id", run.ID,
			"error", err)
	}

	e.notify(saveCtx, run)
	return run, cause
}

// notify hands the run's final entity list to the notifier. Delivery is
// at-least-once downstream; a notification failure never changes the
// run's terminal status.
func (e *Engine) notify(ctx context.Context, run *model.RunRecord) {
	if e.notifier == nil {
		return
	}

	obligations := make([]model.ObligationRecord, 0, len(run.ObligationIDs))
	for _, id := range run.ObligationIDs {
		record, err := e.storage.GetObligation(ctx, id)
		if err != nil {
			slog.Warn("Failed to load obligation for notification",
				"run_id", run.ID,
				"obligation_id", id,
				"error", err)
			continue
		}
		obligations = append(obligations, *record)
	}

	if err := e.notifier.RunFinished(ctx, run, obligations); err != nil {
		slog.Warn("Notifier delivery failed",
			"run_id", run.ID,
			"error", err)
	}
}

func summarize(records []*model.ObligationRecord) model.RunSummary {
	var summary model.RunSummary
	total := decimal.Zero

	for _, r := range records {
		switch r.Type {
		case model.TypeSubscription:
			summary.Subscriptions++
		case model.TypeBill:
			summary.Bills++
		case model.TypeLoan:
			summary.Loans++
		}
		total = total.Add(r.Amount)
		if summary.Currency == "" {
			summary.Currency = r.Currency
		}
	}

	summary.TotalAmount = total.String()
	return summary
}

func replaceRecord(records []model.ObligationRecord, updated *model.ObligationRecord) {
	for i := range records {
		if records[i].ID == updated.ID {
			records[i] = *updated
			return
		}
	}
}

func appendRecord(records []*model.ObligationRecord, record *model.ObligationRecord) []*model.ObligationRecord {
	for i, r := range records {
		if r.ID == record.ID {
			records[i] = record
			return records
		}
	}
	return append(records, record)
}
