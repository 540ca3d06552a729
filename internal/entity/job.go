package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"resume-insights/constants"
)

// Job represents one document's end-to-end processing record, used for data
// transfer between layers. The Job Store is the single source of truth for it.
type Job struct {
	ID          uuid.UUID                               `json:"id"`
	FileName    string                                  `json:"file_name"`
	FileSize    int64                                   `json:"file_size"`
	ContentType string                                  `json:"content_type"`
	FilePath    string                                  `json:"file_path"`
	Status      constants.JobStatus                     `json:"status"`
	Error       *string                                 `json:"error,omitempty"`
	RawText     *string                                 `json:"raw_text,omitempty"`
	Stages      map[constants.Stage]*StageResult        `json:"stages"`
	CreatedAt   time.Time                               `json:"created_at"`
	UpdatedAt   time.Time                               `json:"updated_at"`
	ProcessedAt *time.Time                              `json:"processed_at,omitempty"`
}

// Stage returns the result slot for the named stage, or a zero pending slot
// when the store has not materialized it yet.
func (j *Job) Stage(s constants.Stage) *StageResult {
	if r, ok := j.Stages[s]; ok && r != nil {
		return r
	}
	return &StageResult{Stage: s, State: constants.StageStatePending}
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state behind the store's back.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	if j.RawText != nil {
		t := *j.RawText
		cp.RawText = &t
	}
	if j.ProcessedAt != nil {
		p := *j.ProcessedAt
		cp.ProcessedAt = &p
	}
	cp.Stages = make(map[constants.Stage]*StageResult, len(j.Stages))
	for name, sr := range j.Stages {
		cp.Stages[name] = sr.Clone()
	}
	return &cp
}

// StageResult is one stage's slot inside a job. Once State is succeeded the
// Output is immutable except for an idempotent re-persist of an equivalent
// recomputation.
type StageResult struct {
	Stage     constants.Stage      `json:"stage"`
	State     constants.StageState `json:"state"`
	Attempts  int                  `json:"attempts"`
	Output    json.RawMessage      `json:"output,omitempty"`
	LastError *string              `json:"last_error,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Clone returns a deep copy of the stage slot.
func (r *StageResult) Clone() *StageResult {
	cp := *r
	if r.LastError != nil {
		e := *r.LastError
		cp.LastError = &e
	}
	if r.Output != nil {
		cp.Output = append(json.RawMessage(nil), r.Output...)
	}
	return &cp
}

// Task is a queued request to execute one stage for one job. Tasks are
// transient; the broker owns them between enqueue and acknowledgement.
type Task struct {
	JobID      uuid.UUID       `json:"job_id"`
	Stage      constants.Stage `json:"stage"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
