package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"resume-insights/constants"
	"resume-insights/internal/common"
	"resume-insights/internal/entity"
)

type storeFactory func(t *testing.T) JobStore

func backends(t *testing.T) map[string]storeFactory {
	t.Helper()
	return map[string]storeFactory{
		"memory": func(t *testing.T) JobStore {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) JobStore {
			store, err := OpenSQLite(":memory:", nil)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func newTestJob(t *testing.T, store JobStore) *entity.Job {
	t.Helper()
	job := &entity.Job{
		ID:       uuid.New(),
		FileName: "resume.pdf",
		FileSize: 2048,
		FilePath: "/tmp/resume.pdf",
	}
	if err := store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func mustClaim(t *testing.T, store JobStore, id uuid.UUID, stage constants.Stage, attempt int) {
	t.Helper()
	if err := store.ClaimStage(context.Background(), id, stage, attempt); err != nil {
		t.Fatalf("claim %s attempt %d: %v", stage, attempt, err)
	}
}

func mustFinish(t *testing.T, store JobStore, id uuid.UUID, stage constants.Stage, outcome StageOutcome) {
	t.Helper()
	if err := store.FinishStage(context.Background(), id, stage, outcome); err != nil {
		t.Fatalf("finish %s: %v", stage, err)
	}
}

func succeeded(payload string) StageOutcome {
	return StageOutcome{State: constants.StageStateSucceeded, Output: json.RawMessage(payload)}
}

func TestCreateAndGetJob(t *testing.T) {
	t.Parallel()
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := factory(t)
			job := newTestJob(t, store)

			got, err := store.GetJob(context.Background(), job.ID)
			if err != nil {
				t.Fatalf("get job: %v", err)
			}
			if got.Status != constants.JobStatusPending {
				t.Errorf("status = %s, want pending", got.Status)
			}
			if len(got.Stages) != len(constants.AllStages) {
				t.Errorf("stage slots = %d, want %d", len(got.Stages), len(constants.AllStages))
			}
			for _, s := range constants.AllStages {
				if got.Stage(s).State != constants.StageStatePending {
					t.Errorf("stage %s state = %s, want pending", s, got.Stage(s).State)
				}
			}

			if _, err := store.GetJob(context.Background(), uuid.New()); !errors.Is(err, common.ErrNotFound) {
				t.Errorf("unknown id error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestClaimStageCompareAndSet(t *testing.T) {
	t.Parallel()
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := factory(t)
			job := newTestJob(t, store)
			ctx := context.Background()

			// First claim at attempt 1 wins.
			mustClaim(t, store, job.ID, constants.StageExtract, 1)

			// Redelivery of the same attempt is accepted (idempotent rerun).
			mustClaim(t, store, job.ID, constants.StageExtract, 1)

			// A new attempt cannot start while attempt 1 is running.
			if err := store.ClaimStage(ctx, job.ID, constants.StageExtract, 2); !errors.Is(err, common.ErrStageConflict) {
				t.Errorf("claim attempt 2 while running = %v, want ErrStageConflict", err)
			}

			// Stale claim for an already-consumed attempt number loses.
			mustFinish(t, store, job.ID, constants.StageExtract, StageOutcome{
				State: constants.StageStatePending, LastError: "timeout",
			})
			if err := store.ClaimStage(ctx, job.ID, constants.StageExtract, 1); !errors.Is(err, common.ErrStageConflict) {
				t.Errorf("stale claim after nack = %v, want ErrStageConflict", err)
			}

			// The scheduled retry attempt is accepted.
			mustClaim(t, store, job.ID, constants.StageExtract, 2)

			got, err := store.GetJob(ctx, job.ID)
			if err != nil {
				t.Fatalf("get job: %v", err)
			}
			if got.Stage(constants.StageExtract).Attempts != 2 {
				t.Errorf("attempts = %d, want 2", got.Stage(constants.StageExtract).Attempts)
			}
			if got.Status != constants.JobStatusExtracting {
				t.Errorf("status = %s, want extracting", got.Status)
			}
		})
	}
}

func TestFinishStageRecomputesStatus(t *testing.T) {
	t.Parallel()
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := factory(t)
			job := newTestJob(t, store)
			ctx := context.Background()

			mustClaim(t, store, job.ID, constants.StageExtract, 1)
			mustFinish(t, store, job.ID, constants.StageExtract, succeeded(`{"text":"hi"}`))

			got, _ := store.GetJob(ctx, job.ID)
			if got.Status != constants.JobStatusParsing {
				t.Fatalf("after extract: status = %s, want parsing", got.Status)
			}

			mustClaim(t, store, job.ID, constants.StageParse, 1)
			mustFinish(t, store, job.ID, constants.StageParse, succeeded(`{"personalInfo":{}}`))

			got, _ = store.GetJob(ctx, job.ID)
			if got.Status != constants.JobStatusAIProcessing {
				t.Fatalf("after parse: status = %s, want ai_processing", got.Status)
			}

			for i, s := range constants.EnrichmentStages {
				mustClaim(t, store, job.ID, s, 1)
				outcome := succeeded(`{}`)
				if i == 1 {
					// One failed enrichment must not block completion.
					outcome = StageOutcome{State: constants.StageStateFailed, LastError: "rate limited"}
				}
				mustFinish(t, store, job.ID, s, outcome)
			}

			got, _ = store.GetJob(ctx, job.ID)
			if got.Status != constants.JobStatusCompleted {
				t.Fatalf("after enrichments: status = %s, want completed", got.Status)
			}
			if got.ProcessedAt == nil {
				t.Error("processed_at not set on completion")
			}
		})
	}
}

func TestFinishStageParseFailureFailsJob(t *testing.T) {
	t.Parallel()
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := factory(t)
			job := newTestJob(t, store)
			ctx := context.Background()

			mustClaim(t, store, job.ID, constants.StageExtract, 1)
			mustFinish(t, store, job.ID, constants.StageExtract, succeeded(`{"text":"hi"}`))
			mustClaim(t, store, job.ID, constants.StageParse, 1)
			mustFinish(t, store, job.ID, constants.StageParse, StageOutcome{
				State: constants.StageStateFailed, LastError: "invalid response shape",
			})

			got, _ := store.GetJob(ctx, job.ID)
			if got.Status != constants.JobStatusFailed {
				t.Fatalf("status = %s, want failed", got.Status)
			}
			if got.Error == nil || *got.Error == "" {
				t.Error("job error not surfaced")
			}

			// Terminal jobs reject further writes.
			if err := store.ClaimStage(ctx, job.ID, constants.StageBias, 1); !errors.Is(err, common.ErrJobTerminal) {
				t.Errorf("claim on failed job = %v, want ErrJobTerminal", err)
			}
		})
	}
}

func TestCancelRejectsLateWrites(t *testing.T) {
	t.Parallel()
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := factory(t)
			job := newTestJob(t, store)
			ctx := context.Background()

			mustClaim(t, store, job.ID, constants.StageExtract, 1)
			if err := store.Cancel(ctx, job.ID); err != nil {
				t.Fatalf("cancel: %v", err)
			}

			// The in-flight worker's completion arrives after cancellation.
			err := store.FinishStage(ctx, job.ID, constants.StageExtract, succeeded(`{"text":"late"}`))
			if !errors.Is(err, common.ErrJobCancelled) {
				t.Errorf("late finish = %v, want ErrJobCancelled", err)
			}

			got, _ := store.GetJob(ctx, job.ID)
			if got.Status != constants.JobStatusCancelled {
				t.Errorf("status = %s, want cancelled", got.Status)
			}
			if err := store.Cancel(ctx, job.ID); !errors.Is(err, common.ErrJobTerminal) {
				t.Errorf("double cancel = %v, want ErrJobTerminal", err)
			}
		})
	}
}

func TestResetStageReopensFailedJob(t *testing.T) {
	t.Parallel()
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := factory(t)
			job := newTestJob(t, store)
			ctx := context.Background()

			mustClaim(t, store, job.ID, constants.StageExtract, 1)
			mustFinish(t, store, job.ID, constants.StageExtract, StageOutcome{
				State: constants.StageStateFailed, LastError: "corrupt file",
			})

			got, _ := store.GetJob(ctx, job.ID)
			if got.Status != constants.JobStatusFailed {
				t.Fatalf("status = %s, want failed", got.Status)
			}

			// Reset only applies to failed stages.
			if err := store.ResetStage(ctx, job.ID, constants.StageParse); !errors.Is(err, common.ErrStageConflict) {
				t.Errorf("reset pending stage = %v, want ErrStageConflict", err)
			}

			if err := store.ResetStage(ctx, job.ID, constants.StageExtract); err != nil {
				t.Fatalf("reset: %v", err)
			}
			got, _ = store.GetJob(ctx, job.ID)
			if got.Status != constants.JobStatusPending {
				t.Errorf("status = %s, want pending", got.Status)
			}
			if got.Error != nil {
				t.Errorf("job error = %q, want cleared", *got.Error)
			}
			sr := got.Stage(constants.StageExtract)
			if sr.State != constants.StageStatePending || sr.Attempts != 0 {
				t.Errorf("stage = %s attempts %d, want pending/0", sr.State, sr.Attempts)
			}

			// A fresh attempt 1 is accepted after reset.
			mustClaim(t, store, job.ID, constants.StageExtract, 1)
		})
	}
}

func TestSetRawTextAndDelete(t *testing.T) {
	t.Parallel()
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := factory(t)
			job := newTestJob(t, store)
			ctx := context.Background()

			if err := store.SetRawText(ctx, job.ID, "John Doe\nEngineer"); err != nil {
				t.Fatalf("set raw text: %v", err)
			}
			got, _ := store.GetJob(ctx, job.ID)
			if got.RawText == nil || *got.RawText != "John Doe\nEngineer" {
				t.Error("raw text not persisted")
			}

			if err := store.DeleteJob(ctx, job.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.GetJob(ctx, job.ID); !errors.Is(err, common.ErrNotFound) {
				t.Errorf("get deleted = %v, want ErrNotFound", err)
			}
			if err := store.DeleteJob(ctx, job.ID); !errors.Is(err, common.ErrNotFound) {
				t.Errorf("double delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestListJobsByStatus(t *testing.T) {
	t.Parallel()
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := factory(t)
			ctx := context.Background()

			var ids []uuid.UUID
			for i := 0; i < 3; i++ {
				job := newTestJob(t, store)
				ids = append(ids, job.ID)
			}
			if err := store.Cancel(ctx, ids[0]); err != nil {
				t.Fatalf("cancel: %v", err)
			}

			pending, err := store.ListJobsByStatus(ctx, constants.JobStatusPending, 0)
			if err != nil {
				t.Fatalf("list pending: %v", err)
			}
			if len(pending) != 2 {
				t.Errorf("pending jobs = %d, want 2", len(pending))
			}

			cancelled, err := store.ListJobsByStatus(ctx, constants.JobStatusCancelled, 10)
			if err != nil {
				t.Fatalf("list cancelled: %v", err)
			}
			if len(cancelled) != 1 || cancelled[0].ID != ids[0] {
				t.Errorf("cancelled list = %v", cancelled)
			}
		})
	}
}

func TestDuplicateFinishAfterRedelivery(t *testing.T) {
	t.Parallel()
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := factory(t)
			job := newTestJob(t, store)
			ctx := context.Background()

			// Two workers hold the same logical attempt after a redelivery.
			mustClaim(t, store, job.ID, constants.StageExtract, 1)
			mustClaim(t, store, job.ID, constants.StageExtract, 1)

			mustFinish(t, store, job.ID, constants.StageExtract, succeeded(`{"text":"first"}`))

			// The second finish arrives after the slot left running state.
			err := store.FinishStage(ctx, job.ID, constants.StageExtract, succeeded(`{"text":"second"}`))
			if !errors.Is(err, common.ErrStageConflict) {
				t.Errorf("duplicate finish = %v, want ErrStageConflict", err)
			}

			got, _ := store.GetJob(ctx, job.ID)
			if string(got.Stage(constants.StageExtract).Output) != `{"text":"first"}` {
				t.Errorf("output = %s, want first writer preserved", got.Stage(constants.StageExtract).Output)
			}
		})
	}
}
