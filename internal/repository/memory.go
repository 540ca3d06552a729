package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"resume-insights/constants"
	"resume-insights/internal/common"
	"resume-insights/internal/entity"
)

// MemoryStore is a fully in-memory JobStore. Safe for concurrent access.
// Intended for unit testing and single-process development.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entity.Job
}

var _ JobStore = (*MemoryStore)(nil)

// NewMemoryStore returns a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*entity.Job)}
}

// CreateJob persists a new job in pending status with all stage slots pending.
func (m *MemoryStore) CreateJob(_ context.Context, job *entity.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return common.NewAppError("JOB_EXISTS", "job already exists", common.ErrInvalidInput)
	}

	cp := job.Clone()
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	cp.Status = constants.JobStatusPending
	if cp.Stages == nil {
		cp.Stages = make(map[constants.Stage]*entity.StageResult, len(constants.AllStages))
	}
	for _, s := range constants.AllStages {
		if _, ok := cp.Stages[s]; !ok {
			cp.Stages[s] = &entity.StageResult{Stage: s, State: constants.StageStatePending, UpdatedAt: now}
		}
	}
	m.jobs[job.ID] = cp
	return nil
}

// GetJob retrieves a deep copy of a job by ID.
func (m *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return job.Clone(), nil
}

// ListJobsByStatus returns jobs with the given status, newest first.
func (m *MemoryStore) ListJobsByStatus(_ context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*entity.Job
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetRawText stores the extracted raw text on the job.
func (m *MemoryStore) SetRawText(_ context.Context, id uuid.UUID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	job.RawText = &text
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// ClaimStage performs the per-stage compare-and-set described on JobStore.
func (m *MemoryStore) ClaimStage(_ context.Context, id uuid.UUID, stage constants.Stage, attempt int) error {
	return m.mutate(id, func(job *entity.Job, now time.Time) error {
		return claimStage(job, stage, attempt, now)
	})
}

// FinishStage applies the outcome and recomputes the aggregate status.
func (m *MemoryStore) FinishStage(_ context.Context, id uuid.UUID, stage constants.Stage, outcome StageOutcome) error {
	return m.mutate(id, func(job *entity.Job, now time.Time) error {
		return finishStage(job, stage, outcome, now)
	})
}

// ResetStage opens a fresh attempt cycle for a permanently failed stage.
func (m *MemoryStore) ResetStage(_ context.Context, id uuid.UUID, stage constants.Stage) error {
	return m.mutate(id, func(job *entity.Job, now time.Time) error {
		return resetStage(job, stage, now)
	})
}

// Cancel marks the job cancelled.
func (m *MemoryStore) Cancel(_ context.Context, id uuid.UUID) error {
	return m.mutate(id, func(job *entity.Job, now time.Time) error {
		return cancelJob(job, now)
	})
}

// DeleteJob removes the job.
func (m *MemoryStore) DeleteJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return common.ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

// Ping always succeeds for the memory store.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) mutate(id uuid.UUID, fn func(job *entity.Job, now time.Time) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	return fn(job, time.Now().UTC())
}
