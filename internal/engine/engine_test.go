package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/dedup"
	"github.com/Veraticus/the-bills-must-flow/internal/extract"
	"github.com/Veraticus/the-bills-must-flow/internal/ingest"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/notify"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
	"github.com/Veraticus/the-bills-must-flow/internal/testutil"
	"github.com/Veraticus/the-bills-must-flow/internal/validate"
)

type fixture struct {
	db       *testutil.TestDB
	inbox    *ingest.MockInbox
	oracle   *extract.MockOracle
	notifier *notify.MockNotifier
	engine   *Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	inbox := ingest.NewMockInbox()
	oracle := extract.NewMockOracle()
	notifier := notify.NewMockNotifier()

	client := extract.NewClient(oracle, extract.ClientConfig{
		Concurrency: 2,
		Retry: service.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		},
	})

	eng := New(db.Storage, inbox, client,
		validate.New(validate.DefaultConfig()),
		dedup.New(dedup.DefaultConfig()),
		notifier)

	return &fixture{db: db, inbox: inbox, oracle: oracle, notifier: notifier, engine: eng}
}

func batch() BatchConfig {
	return BatchConfig{Since: time.Now().Add(-24 * time.Hour), MaxCount: 100}
}

func oracleResponse(merchant, amount, typeHint, category string) string {
	due := time.Now().AddDate(0, 0, 12).Format("2006-01-02")
	return fmt.Sprintf(`{
		"merchant": %q, "amount": %q, "currency": "INR", "due_date": %q,
		"entity_type": %q, "category": %q, "auto_debit": true,
		"confidence_score": 0.92
	}`, merchant, amount, due, typeHint, category)
}

func TestRunHappyPath(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.inbox.Deliver(testutil.RawEmail("e1", "Your Netflix bill", "Netflix payment of ₹649.00 is due soon"))
	f.oracle.RespondWith("Netflix", oracleResponse("Netflix", "649.00", "subscription", "entertainment"))

	var progressCalls []int
	cfg := batch()
	cfg.Progress = func(done, _ int) { progressCalls = append(progressCalls, done) }

	run, err := f.engine.Run(ctx, "user-1", cfg)
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, model.StageCounters{
		Fetched: 1, Normalized: 1, Extracted: 1, Validated: 1,
		Classified: 1, Deduplicated: 1, Stored: 1,
	}, run.Counters)
	assert.Equal(t, 1, run.Summary.Subscriptions)
	assert.Equal(t, "649", run.Summary.TotalAmount)
	assert.Equal(t, "INR", run.Summary.Currency)
	assert.Equal(t, []int{1}, progressCalls)

	obligations, err := f.engine.ListObligations(ctx, "user-1", service.ObligationFilter{})
	require.NoError(t, err)
	require.Len(t, obligations, 1)

	o := obligations[0]
	assert.Equal(t, "Netflix", o.Merchant)
	assert.True(t, o.Amount.Equal(decimal.RequireFromString("649.00")))
	assert.Equal(t, model.TypeSubscription, o.Type)
	assert.Equal(t, "entertainment", o.Category)
	assert.Equal(t, model.StatusPending, o.Status)
	assert.True(t, o.AutoDebit)
	assert.Equal(t, []string{"e1"}, o.SourceEmailIDs)

	// Terminal state is durable and the notifier saw the entity list.
	persisted, err := f.engine.RunStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, persisted.Status)

	deliveries := f.notifier.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Len(t, deliveries[0].Obligations, 1)
}

func TestRunIsIdempotentAcrossReprocessing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.inbox.Deliver(testutil.RawEmail("e1", "Your Netflix bill", "Netflix payment due"))
	f.oracle.RespondWith("Netflix", oracleResponse("Netflix", "649.00", "subscription", "entertainment"))

	first, err := f.engine.Run(ctx, "user-1", batch())
	require.NoError(t, err)
	require.Equal(t, model.RunCompleted, first.Status)

	// Same inbox contents again: the duplicate-source guard discards the
	// observation and the run still completes cleanly.
	second, err := f.engine.Run(ctx, "user-1", batch())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, second.Status)
	assert.Equal(t, 1, second.Counters.Deduplicated)
	assert.Equal(t, 0, second.Counters.Stored)
	assert.Empty(t, second.ObligationIDs)

	obligations, err := f.engine.ListObligations(ctx, "user-1", service.ObligationFilter{})
	require.NoError(t, err)
	require.Len(t, obligations, 1)
	assert.Equal(t, []string{"e1"}, obligations[0].SourceEmailIDs)
}

func TestRunMergesVariantsWithinBatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.inbox.Deliver(
		testutil.RawEmail("e1", "NETFLIX.COM receipt", "Charged for NETFLIX.COM"),
		testutil.RawEmail("e2", "Netflix renewal", "Your Netflix renewal"),
	)
	f.oracle.RespondWith("NETFLIX.COM", oracleResponse("NETFLIX.COM", "649.00", "subscription", "entertainment"))
	f.oracle.RespondWith("renewal", oracleResponse("Netflix", "649.00", "subscription", "entertainment"))

	run, err := f.engine.Run(ctx, "user-1", batch())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Counters.Deduplicated)
	assert.Equal(t, 1, run.Counters.Stored)

	obligations, err := f.engine.ListObligations(ctx, "user-1", service.ObligationFilter{})
	require.NoError(t, err)
	require.Len(t, obligations, 1)
	assert.ElementsMatch(t, []string{"e1", "e2"}, obligations[0].SourceEmailIDs)
}

func TestRunRecordsItemFailuresAndPartiallyCompletes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.inbox.Deliver(
		testutil.RawEmail("e1", "Your Netflix bill", "Netflix payment due"),
		testutil.RawEmail("e2", "Suspicious refund", "You are owed money"),
	)
	f.oracle.RespondWith("Netflix", oracleResponse("Netflix", "649.00", "subscription", "entertainment"))
	f.oracle.RespondWith("Suspicious", oracleResponse("Scam Co", "-100.00", "bill", "other"))

	run, err := f.engine.Run(ctx, "user-1", batch())
	require.NoError(t, err)

	assert.Equal(t, model.RunPartiallyCompleted, run.Status)
	assert.Equal(t, 1, run.Counters.Stored)
	assert.Equal(t, 1, run.Counters.Failed)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "e2", run.Failures[0].SourceID)
	assert.Equal(t, model.StageValidate, run.Failures[0].Stage)
	assert.Contains(t, run.Failures[0].Reason, "negative")

	// The good item's obligation persisted despite the bad one.
	obligations, err := f.engine.ListObligations(ctx, "user-1", service.ObligationFilter{})
	require.NoError(t, err)
	assert.Len(t, obligations, 1)
}

func TestRunFailsWhenEveryItemFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.inbox.Deliver(testutil.RawEmail("e1", "Bill", "body"))
	f.oracle.FailWith(&common.RetryableError{Err: common.ErrOracleUnavailable, Retryable: true}, 10)

	run, err := f.engine.Run(ctx, "user-1", batch())
	require.NoError(t, err)

	assert.Equal(t, model.RunFailed, run.Status)
	assert.Equal(t, 1, run.Counters.Failed)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, model.StageExtract, run.Failures[0].Stage)
}

func TestRunAbortsOnInboxFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.inbox.FailWith(errors.New("gmail unreachable"))

	run, err := f.engine.Run(ctx, "user-1", batch())
	require.Error(t, err)
	assert.Equal(t, model.RunFailed, run.Status)
	require.NotNil(t, run.CompletedAt)

	persisted, getErr := f.engine.RunStatus(ctx, run.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.RunFailed, persisted.Status)
}

func TestRunEmptyBatchCompletes(t *testing.T) {
	f := setup(t)

	run, err := f.engine.Run(context.Background(), "user-1", batch())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, model.StageCounters{}, run.Counters)
	assert.Empty(t, run.ObligationIDs)
}

func TestRunDropsNonFinancialEmailsSilently(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// No oracle response registered: the mock reports no financial content.
	f.inbox.Deliver(testutil.RawEmail("e1", "Weekly newsletter", "Nothing about money here"))

	run, err := f.engine.Run(ctx, "user-1", batch())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 1, run.Counters.Extracted)
	assert.Equal(t, 0, run.Counters.Validated)
	assert.Equal(t, 0, run.Counters.Classified)
	assert.Equal(t, 0, run.Counters.Deduplicated)
	assert.Equal(t, 0, run.Counters.Stored)
	assert.Equal(t, 0, run.Counters.Failed)
	assert.Empty(t, run.Failures)
}

func TestRunCountsDroppedItemsOnlyAtExtraction(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.inbox.Deliver(testutil.RawEmail("e1", "Weekly newsletter", "Nothing about money here"))
	f.inbox.Deliver(testutil.RawEmail("e2", "Your Netflix bill", "Netflix payment due"))
	f.oracle.RespondWith("Netflix", oracleResponse("Netflix", "649.00", "subscription", "entertainment"))

	run, err := f.engine.Run(ctx, "user-1", batch())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Counters.Fetched)
	assert.Equal(t, 2, run.Counters.Extracted)
	assert.Equal(t, 1, run.Counters.Validated)
	assert.Equal(t, 1, run.Counters.Classified)
	assert.Equal(t, 1, run.Counters.Deduplicated)
	assert.Equal(t, 1, run.Counters.Stored)
}

func TestRunRejectsEmptyUser(t *testing.T) {
	f := setup(t)

	_, err := f.engine.Run(context.Background(), "", batch())
	require.Error(t, err)
}

func TestConcurrentRunsForSameUserDoNotDuplicate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.inbox.Deliver(testutil.RawEmail("e1", "Your Netflix bill", "Netflix payment due"))
	f.oracle.RespondWith("Netflix", oracleResponse("Netflix", "649.00", "subscription", "entertainment"))

	var wg sync.WaitGroup
	runs := make([]*model.RunRecord, 2)
	for i := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := f.engine.Run(ctx, "user-1", batch())
			assert.NoError(t, err)
			runs[i] = run
		}()
	}
	wg.Wait()

	require.NotNil(t, runs[0])
	require.NotNil(t, runs[1])

	stored := runs[0].Counters.Stored + runs[1].Counters.Stored
	assert.Equal(t, 1, stored, "exactly one run should have written the obligation")

	obligations, err := f.engine.ListObligations(ctx, "user-1", service.ObligationFilter{})
	require.NoError(t, err)
	require.Len(t, obligations, 1)
	assert.Equal(t, []string{"e1"}, obligations[0].SourceEmailIDs)
}

func TestStartRunReturnsImmediatelyAndReachesTerminalState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.inbox.Deliver(testutil.RawEmail("e1", "Your Netflix bill", "Netflix payment due"))
	f.oracle.RespondWith("Netflix", oracleResponse("Netflix", "649.00", "subscription", "entertainment"))

	runID, err := f.engine.StartRun(ctx, "user-1", batch())
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	deadline := time.After(5 * time.Second)
	for {
		run, err := f.engine.RunStatus(ctx, runID)
		require.NoError(t, err)
		if run.Status.Terminal() {
			assert.Equal(t, model.RunCompleted, run.Status)
			assert.Equal(t, 1, run.Counters.Stored)
			return
		}
		select {
		case <-deadline:
			t.Fatalf("run %s never reached a terminal state (last: %s)", runID, run.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunSummaryCountsByType(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.inbox.Deliver(
		testutil.RawEmail("e1", "Netflix bill", "Netflix"),
		testutil.RawEmail("e2", "Electricity bill", "BSES electricity"),
		testutil.RawEmail("e3", "EMI reminder", "Home loan EMI"),
	)
	f.oracle.RespondWith("Netflix", oracleResponse("Netflix", "649.00", "subscription", "entertainment"))
	f.oracle.RespondWith("Electricity", oracleResponse("BSES", "2100.00", "bill", "utility"))
	f.oracle.RespondWith("EMI", oracleResponse("HDFC Home Loan", "45000.00", "loan", "home_loan"))

	run, err := f.engine.Run(ctx, "user-1", batch())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 1, run.Summary.Subscriptions)
	assert.Equal(t, 1, run.Summary.Bills)
	assert.Equal(t, 1, run.Summary.Loans)
	assert.Equal(t, "47749", run.Summary.TotalAmount)
	assert.Equal(t, "INR", run.Summary.Currency)
}
