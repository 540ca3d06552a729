package repository

import (
	"time"

	"resume-insights/constants"
	"resume-insights/internal/aggregate"
	"resume-insights/internal/common"
	"resume-insights/internal/entity"
)

// The helpers below mutate an entity.Job in place. Every store loads the job
// (under its own locking or transaction), applies one helper, and persists
// the result, so the claim/finish semantics are identical across backends.

func claimStage(job *entity.Job, stage constants.Stage, attempt int, now time.Time) error {
	if job.Status == constants.JobStatusCancelled {
		return common.ErrJobCancelled
	}
	if job.Status.Terminal() {
		return common.ErrJobTerminal
	}

	sr := job.Stages[stage]
	if sr == nil {
		return common.ErrStageConflict
	}

	switch {
	case sr.State == constants.StageStatePending && sr.Attempts == attempt-1:
		sr.State = constants.StageStateRunning
		sr.Attempts = attempt
		sr.UpdatedAt = now
	case sr.State == constants.StageStateRunning && sr.Attempts == attempt:
		// Redelivery of the same logical attempt; idempotent re-execution.
		sr.UpdatedAt = now
	default:
		return common.ErrStageConflict
	}

	recomputeStatus(job, now)
	return nil
}

func finishStage(job *entity.Job, stage constants.Stage, outcome StageOutcome, now time.Time) error {
	if job.Status == constants.JobStatusCancelled {
		return common.ErrJobCancelled
	}
	if job.Status.Terminal() {
		return common.ErrJobTerminal
	}

	sr := job.Stages[stage]
	if sr == nil || sr.State != constants.StageStateRunning {
		return common.ErrStageConflict
	}

	sr.State = outcome.State
	sr.UpdatedAt = now
	if outcome.State == constants.StageStateSucceeded {
		sr.Output = append([]byte(nil), outcome.Output...)
		sr.LastError = nil
	} else {
		e := outcome.LastError
		sr.LastError = &e
	}

	recomputeStatus(job, now)
	return nil
}

func resetStage(job *entity.Job, stage constants.Stage, now time.Time) error {
	if job.Status == constants.JobStatusCancelled {
		return common.ErrJobCancelled
	}

	sr := job.Stages[stage]
	if sr == nil || sr.State != constants.StageStateFailed {
		return common.ErrStageConflict
	}

	sr.State = constants.StageStatePending
	sr.Attempts = 0
	sr.LastError = nil
	sr.UpdatedAt = now

	// An operator retry reopens the job, so clear the terminal bookkeeping
	// before re-deriving the status.
	job.ProcessedAt = nil
	job.Error = nil
	recomputeStatus(job, now)
	return nil
}

func cancelJob(job *entity.Job, now time.Time) error {
	if job.Status.Terminal() {
		return common.ErrJobTerminal
	}
	job.Status = constants.JobStatusCancelled
	job.ProcessedAt = &now
	job.UpdatedAt = now
	return nil
}

// recomputeStatus re-derives the aggregate status after a stage transition.
func recomputeStatus(job *entity.Job, now time.Time) {
	status := aggregate.DeriveStatus(job)
	job.Status = status
	job.UpdatedAt = now

	switch status {
	case constants.JobStatusFailed:
		job.Error = firstFatalError(job)
		job.ProcessedAt = &now
	case constants.JobStatusCompleted:
		job.ProcessedAt = &now
	}
}

// firstFatalError surfaces the extract/parse failure as the job-level error.
func firstFatalError(job *entity.Job) *string {
	for _, s := range []constants.Stage{constants.StageExtract, constants.StageParse} {
		sr := job.Stage(s)
		if sr.State == constants.StageStateFailed && sr.LastError != nil {
			msg := string(s) + ": " + *sr.LastError
			return &msg
		}
	}
	msg := "processing failed"
	return &msg
}
