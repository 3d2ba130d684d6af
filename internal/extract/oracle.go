// Package extract wraps the external entity-extraction oracle. The oracle
// is an untrusted, rate-limited service: its output is parsed defensively
// and validated downstream, never trusted.
package extract

import "context"

// Oracle is the external language-understanding service. Infer returns
// the raw response text, which the caller parses as a JSON candidate.
type Oracle interface {
	Infer(ctx context.Context, text string) (string, error)
}
