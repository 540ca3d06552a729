package constants

// JobStatus is the canonical aggregate status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending      JobStatus = "pending"       // created, extract not yet started
	JobStatusExtracting   JobStatus = "extracting"    // extract stage in progress
	JobStatusParsing      JobStatus = "parsing"       // raw text available, parse stage owed or in progress
	JobStatusAIProcessing JobStatus = "ai_processing" // parse succeeded, enrichment fan-out not yet settled
	JobStatusCompleted    JobStatus = "completed"     // terminal success (enrichment stages may carry partial failures)
	JobStatusFailed       JobStatus = "failed"        // terminal: extract or parse failed permanently
	JobStatusCancelled    JobStatus = "cancelled"     // terminal: cancelled by an external request
)

// Terminal reports whether the status is final. Terminal jobs are never
// moved back by late stage completions; only an explicit operator retry
// opens a fresh attempt cycle.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// StageState is the per-stage lifecycle state inside a job.
type StageState string

const (
	StageStatePending   StageState = "pending"
	StageStateRunning   StageState = "running"
	StageStateSucceeded StageState = "succeeded"
	StageStateFailed    StageState = "failed" // permanent; retries exhausted or fatal input
)

// Terminal reports whether the stage will not run again without an
// explicit operator reset.
func (s StageState) Terminal() bool {
	return s == StageStateSucceeded || s == StageStateFailed
}
