package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

// Client runs extraction calls against the oracle with a bounded
// concurrency ceiling. The oracle is a shared, metered resource: excess
// work queues on the semaphore instead of spawning unbounded calls.
type Client struct {
	oracle    Oracle
	sem       chan struct{}
	retryOpts service.RetryOptions
}

// ClientConfig configures the extraction client.
type ClientConfig struct {
	Concurrency int
	Retry       service.RetryOptions
}

// DefaultClientConfig returns the default extraction client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Concurrency: 4,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// NewClient creates an extraction client around the given oracle.
func NewClient(oracle Oracle, cfg ClientConfig) *Client {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultClientConfig().Concurrency
	}
	return &Client{
		oracle:    oracle,
		sem:       make(chan struct{}, cfg.Concurrency),
		retryOpts: cfg.Retry,
	}
}

// Extract calls the oracle for one normalized email and returns the parsed
// candidate. A candidate with no merchant and no amount means the email
// carried no financial content; callers drop it without recording a
// failure.
//
// Cancellation is cooperative: a call still waiting on the semaphore
// honors ctx, but once dispatched the call runs to completion or exhausts
// its retry budget so the result can be recorded for audit.
func (c *Client) Extract(ctx context.Context, email model.NormalizedEmail) (*model.CandidateRecord, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("extraction not dispatched: %w", ctx.Err())
	}

	// Detach from run cancellation: in-flight oracle calls complete.
	callCtx := context.WithoutCancel(ctx)

	var candidate *model.CandidateRecord
	retryErr := common.WithRetry(callCtx, func() error {
		content, err := c.oracle.Infer(callCtx, email.Text)
		if err != nil {
			return err
		}

		parsed, err := ParseCandidate(content, email.SourceID, email.Text)
		if err != nil {
			// Malformed output is worth one more roll of the dice.
			return &common.RetryableError{Err: err, Retryable: true}
		}

		candidate = parsed
		return nil
	}, c.retryOpts)

	if retryErr != nil {
		return nil, fmt.Errorf("extraction failed for %s: %w", email.SourceID, retryErr)
	}

	if candidate.Empty() {
		slog.Debug("No financial content found",
			"source_id", email.SourceID)
	}

	return candidate, nil
}
