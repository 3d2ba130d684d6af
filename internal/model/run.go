package model

import "time"

// RunStatus is the state of a processing run. The pipeline advances a run
// through the stage states in order and lands it on exactly one terminal
// status.
type RunStatus string

// Run states, in pipeline order.
const (
	RunCreated       RunStatus = "created"
	RunFetching      RunStatus = "fetching"
	RunExtracting    RunStatus = "extracting"
	RunValidating    RunStatus = "validating"
	RunClassifying   RunStatus = "classifying"
	RunDeduplicating RunStatus = "deduplicating"
	RunPersisting    RunStatus = "persisting"

	RunCompleted          RunStatus = "completed"
	RunFailed             RunStatus = "failed"
	RunPartiallyCompleted RunStatus = "partially_completed"
)

// Terminal reports whether no further transition can occur from s.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunPartiallyCompleted:
		return true
	}
	return false
}

// Stage names a pipeline stage for failure attribution.
type Stage string

// Pipeline stages.
const (
	StageFetch     Stage = "fetch"
	StageNormalize Stage = "normalize"
	StageExtract   Stage = "extract"
	StageValidate  Stage = "validate"
	StageClassify  Stage = "classify"
	StageDedup     Stage = "dedup"
	StagePersist   Stage = "persist"
)

// StageCounters tracks how many items each stage resolved during a run.
type StageCounters struct {
	Fetched      int
	Normalized   int
	Extracted    int
	Validated    int
	Classified   int
	Deduplicated int
	Stored       int
	Failed       int
}

// ItemFailure records one per-item failure with the stage it occurred in.
type ItemFailure struct {
	SourceID string
	Stage    Stage
	Reason   string
}

// RunSummary aggregates the run's resulting obligations by entity type.
type RunSummary struct {
	Subscriptions int
	Bills         int
	Loans         int
	TotalAmount   string
	Currency      string
}

// RunRecord is the persisted log of one processing run. It is created in
// the created state and mutated only by the run coordinator until it
// reaches a terminal status, after which it is immutable.
type RunRecord struct {
	StartedAt     time.Time
	CompletedAt   *time.Time
	ID            string
	UserID        string
	Status        RunStatus
	ObligationIDs []string
	Failures      []ItemFailure
	Counters      StageCounters
	Summary       RunSummary
}

// RecordFailure appends an item failure and bumps the failure counter.
func (r *RunRecord) RecordFailure(sourceID string, stage Stage, reason string) {
	r.Failures = append(r.Failures, ItemFailure{SourceID: sourceID, Stage: stage, Reason: reason})
	r.Counters.Failed++
}
