// Package repository owns durable job state. All mutation is scoped to a
// single job, and per-stage writes are transactional: concurrent updates to
// different stages of the same job update their own slots and recompute the
// aggregate status atomically, never last-writer-wins over the whole record.
package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"resume-insights/constants"
	"resume-insights/internal/entity"
)

// StageOutcome is the result a worker persists for one stage attempt.
type StageOutcome struct {
	// State the stage moves to: succeeded (with Output), pending (failed
	// attempt, retry scheduled) or failed (permanent).
	State     constants.StageState
	Output    json.RawMessage
	LastError string
}

// JobStore is the single source of truth for jobs and stage results.
//
// Claim/Finish form the per-stage compare-and-set pair that guarantees at
// most one active task per (job, stage): a redelivered task either reclaims
// the same logical attempt (idempotent re-execution) or loses the CAS and is
// dropped by the caller.
type JobStore interface {
	// CreateJob persists a new job in pending status with all six stage
	// slots pending.
	CreateJob(ctx context.Context, job *entity.Job) error

	// GetJob retrieves a job by ID, or common.ErrNotFound.
	GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error)

	// ListJobsByStatus returns up to limit jobs with the given status,
	// newest first. Zero limit means no limit.
	ListJobsByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error)

	// SetRawText stores the extracted raw text on the job.
	SetRawText(ctx context.Context, id uuid.UUID, text string) error

	// ClaimStage transitions (id, stage) to running for the given attempt
	// number. It succeeds when the slot is pending with attempts == attempt-1,
	// or running with attempts == attempt (redelivery of the same logical
	// attempt). It fails with common.ErrStageConflict when the claim loses
	// the race, common.ErrJobCancelled / common.ErrJobTerminal when the job
	// can no longer accept work.
	ClaimStage(ctx context.Context, id uuid.UUID, stage constants.Stage, attempt int) error

	// FinishStage applies the outcome to the stage slot and recomputes the
	// aggregate job status in the same transaction. Outcomes for cancelled
	// or otherwise terminal jobs are rejected so late completions never
	// overwrite terminal state.
	FinishStage(ctx context.Context, id uuid.UUID, stage constants.Stage, outcome StageOutcome) error

	// ResetStage opens a fresh attempt cycle for a permanently failed
	// stage: state back to pending, attempts back to zero. Used only by
	// explicit operator retry requests.
	ResetStage(ctx context.Context, id uuid.UUID, stage constants.Stage) error

	// Cancel marks the job cancelled. In-flight tasks are not killed; they
	// observe the cancelled status at their next persist and discard output.
	Cancel(ctx context.Context, id uuid.UUID) error

	// DeleteJob removes the job and its stage slots.
	DeleteJob(ctx context.Context, id uuid.UUID) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
