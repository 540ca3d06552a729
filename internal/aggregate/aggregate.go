// Package aggregate derives job-level status from per-stage state and merges
// completed stage outputs into the externally visible result object.
package aggregate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"resume-insights/constants"
	"resume-insights/internal/entity"
)

// ErrIncomplete is returned by BuildResult while the job is not terminal.
var ErrIncomplete = errors.New("aggregate: job not terminal")

// DeriveStatus computes the aggregate job status from per-stage states.
// It is evaluated after every stage transition and never by itself moves a
// job out of a terminal status; stores guard terminal statuses separately.
func DeriveStatus(job *entity.Job) constants.JobStatus {
	extract := job.Stage(constants.StageExtract)
	parse := job.Stage(constants.StageParse)

	// Extract and parse are non-optional prerequisites: their permanent
	// failure voids the whole job.
	if extract.State == constants.StageStateFailed || parse.State == constants.StageStateFailed {
		return constants.JobStatusFailed
	}

	if parse.State == constants.StageStateSucceeded {
		for _, s := range constants.EnrichmentStages {
			if !job.Stage(s).State.Terminal() {
				return constants.JobStatusAIProcessing
			}
		}
		return constants.JobStatusCompleted
	}

	// Once extract succeeded the job is owed a parse; the slot may still be
	// pending between extract success and the parse task's claim.
	if extract.State == constants.StageStateSucceeded {
		return constants.JobStatusParsing
	}
	// A pending extract slot with consumed attempts is between retries, not
	// back at the start; the status must never walk backwards.
	if extract.State == constants.StageStateRunning || extract.Attempts > 0 {
		return constants.JobStatusExtracting
	}
	return constants.JobStatusPending
}

// SlotState discriminates one enrichment field of the aggregate, so clients
// can distinguish "not yet computed" from "computed and failed" from
// "computed successfully".
type SlotState string

const (
	SlotSucceeded SlotState = "succeeded"
	SlotFailed    SlotState = "failed"
	SlotPending   SlotState = "pending"
)

// EnrichmentSlot is one enrichment stage's field in the aggregate result.
// Failed slots carry the error instead of being silently omitted.
type EnrichmentSlot struct {
	State SlotState       `json:"state"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Metadata carries the upload bookkeeping block of the result.
type Metadata struct {
	FileName    string     `json:"file_name"`
	FileSize    int64      `json:"file_size"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Result is the externally visible structured result for one job. The parse
// output contributes the six fixed resume fields; each enrichment stage
// contributes one discriminated slot. The merge is commutative over the
// enrichment stages: completion order cannot change the marshalled bytes.
type Result struct {
	ID       uuid.UUID           `json:"id"`
	Status   constants.JobStatus `json:"status"`
	Metadata Metadata            `json:"metadata"`

	PersonalInfo   *entity.PersonalInfo    `json:"personalInfo,omitempty"`
	Summary        *entity.Summary         `json:"summary,omitempty"`
	Experience     []entity.WorkExperience `json:"experience,omitempty"`
	Education      []entity.Education      `json:"education,omitempty"`
	Skills         *entity.Skills          `json:"skills,omitempty"`
	Certifications []entity.Certification  `json:"certifications,omitempty"`

	BiasReport        EnrichmentSlot `json:"biasReport"`
	AnonymizedData    EnrichmentSlot `json:"anonymizedData"`
	SalaryEstimate    EnrichmentSlot `json:"salaryEstimate"`
	CareerProgression EnrichmentSlot `json:"careerProgression"`
}

// Analytics is the enrichment-only view of a result.
type Analytics struct {
	ID     uuid.UUID           `json:"id"`
	Status constants.JobStatus `json:"status"`

	BiasReport        EnrichmentSlot `json:"biasReport"`
	AnonymizedData    EnrichmentSlot `json:"anonymizedData"`
	SalaryEstimate    EnrichmentSlot `json:"salaryEstimate"`
	CareerProgression EnrichmentSlot `json:"careerProgression"`
}

// BuildResult merges the job's succeeded stage outputs into a Result.
// It returns ErrIncomplete until the job reaches a terminal status.
func BuildResult(job *entity.Job) (*Result, error) {
	if !job.Status.Terminal() {
		return nil, ErrIncomplete
	}

	res := &Result{
		ID:     job.ID,
		Status: job.Status,
		Metadata: Metadata{
			FileName:    job.FileName,
			FileSize:    job.FileSize,
			UploadedAt:  job.CreatedAt,
			ProcessedAt: job.ProcessedAt,
		},
	}

	if parse := job.Stage(constants.StageParse); parse.State == constants.StageStateSucceeded {
		var parsed entity.ParsedResume
		if err := json.Unmarshal(parse.Output, &parsed); err != nil {
			return nil, fmt.Errorf("aggregate: decode parse output: %w", err)
		}
		res.PersonalInfo = parsed.PersonalInfo
		res.Summary = parsed.Summary
		res.Experience = parsed.Experience
		res.Education = parsed.Education
		res.Skills = parsed.Skills
		res.Certifications = parsed.Certifications
	}

	res.BiasReport = slotFor(job, constants.StageBias)
	res.AnonymizedData = slotFor(job, constants.StageAnonymize)
	res.SalaryEstimate = slotFor(job, constants.StageSalary)
	res.CareerProgression = slotFor(job, constants.StageCareer)
	return res, nil
}

// BuildAnalytics returns only the enrichment block of the result.
func BuildAnalytics(job *entity.Job) (*Analytics, error) {
	if !job.Status.Terminal() {
		return nil, ErrIncomplete
	}
	return &Analytics{
		ID:                job.ID,
		Status:            job.Status,
		BiasReport:        slotFor(job, constants.StageBias),
		AnonymizedData:    slotFor(job, constants.StageAnonymize),
		SalaryEstimate:    slotFor(job, constants.StageSalary),
		CareerProgression: slotFor(job, constants.StageCareer),
	}, nil
}

func slotFor(job *entity.Job, stage constants.Stage) EnrichmentSlot {
	sr := job.Stage(stage)
	switch sr.State {
	case constants.StageStateSucceeded:
		return EnrichmentSlot{State: SlotSucceeded, Data: sr.Output}
	case constants.StageStateFailed:
		msg := "stage failed"
		if sr.LastError != nil {
			msg = *sr.LastError
		}
		return EnrichmentSlot{State: SlotFailed, Error: msg}
	default:
		return EnrichmentSlot{State: SlotPending}
	}
}
