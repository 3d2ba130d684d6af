package model

import "time"

// RawEmail is a single message as returned by the inbox provider.
// It is immutable input to the pipeline; the provider-assigned ID is
// globally unique per user and is what deduplication keys on.
type RawEmail struct {
	ReceivedAt time.Time
	ID         string
	From       string
	Subject    string
	Body       string
}

// NormalizedEmail is the plaintext form of a RawEmail produced by the
// normalizer. It lives only for the duration of a run.
type NormalizedEmail struct {
	SourceID string
	Text     string
}
