// Package notify delivers run-completion notifications. The log notifier
// is the default sink; delivery downstream is at-least-once and a
// delivery failure never alters a run's terminal status.
package notify

import (
	"context"
	"log/slog"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// LogNotifier emits a structured summary of each finished run to the
// application log.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// RunFinished logs the run's terminal status, counters, and resulting
// obligations.
func (n *LogNotifier) RunFinished(ctx context.Context, run *model.RunRecord, obligations []model.ObligationRecord) error {
	slog.InfoContext(ctx, "Run notification",
		"run_id", run.ID,
		"user_id", run.UserID,
		"status", run.Status,
		"fetched", run.Counters.Fetched,
		"stored", run.Counters.Stored,
		"failed", run.Counters.Failed,
		"subscriptions", run.Summary.Subscriptions,
		"bills", run.Summary.Bills,
		"loans", run.Summary.Loans,
		"total_amount", run.Summary.TotalAmount,
		"currency", run.Summary.Currency)

	for _, o := range obligations {
		due := ""
		if o.DueDate != nil {
			due = o.DueDate.Format("2006-01-02")
		}
		slog.InfoContext(ctx, "Obligation",
			"merchant", o.Merchant,
			"type", o.Type,
			"category", o.Category,
			"amount", o.Amount.String(),
			"currency", o.Currency,
			"due_date", due,
			"auto_debit", o.AutoDebit)
	}

	return nil
}
