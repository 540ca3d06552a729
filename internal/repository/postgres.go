package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"resume-insights/constants"
	"resume-insights/internal/common"
	"resume-insights/internal/entity"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    id            UUID PRIMARY KEY,
    file_name     TEXT NOT NULL,
    file_size     BIGINT NOT NULL,
    content_type  TEXT NOT NULL DEFAULT '',
    file_path     TEXT NOT NULL,
    status        TEXT NOT NULL,
    error_message TEXT,
    raw_text      TEXT,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    processed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS stage_results (
    job_id     UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    stage      TEXT NOT NULL,
    state      TEXT NOT NULL,
    attempts   INTEGER NOT NULL DEFAULT 0,
    output     JSONB,
    last_error TEXT,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (job_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// PostgresStore is a JobStore backed by PostgreSQL. Mutations lock the job
// row with SELECT ... FOR UPDATE so the compare-and-set checks in the
// transition helpers hold under concurrent workers.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ JobStore = (*PostgresStore)(nil)

// OpenPostgres connects to PostgreSQL using the given DSN and applies the
// schema.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, common.WrapError(err, "parse postgres dsn")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, common.WrapError(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, common.WrapError(err, "ping postgres")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, common.WrapError(err, "apply postgres schema")
	}

	logger.Info("postgres store ready", "max_conns", cfg.MaxConns)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// CreateJob inserts the job row and one pending slot per stage.
func (p *PostgresStore) CreateJob(ctx context.Context, job *entity.Job) error {
	now := time.Now().UTC()
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	return p.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO jobs (id, file_name, file_size, content_type, file_path, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			job.ID, job.FileName, job.FileSize, job.ContentType, job.FilePath,
			string(constants.JobStatusPending), createdAt, now)
		if err != nil {
			return common.WrapError(err, "insert job")
		}
		for _, stage := range constants.AllStages {
			_, err := tx.Exec(ctx, `
				INSERT INTO stage_results (job_id, stage, state, attempts, updated_at)
				VALUES ($1, $2, $3, 0, $4)`,
				job.ID, string(stage), string(constants.StageStatePending), now)
			if err != nil {
				return common.WrapError(err, "insert stage slot")
			}
		}
		return nil
	})
}

// GetJob loads a job and its stage slots.
func (p *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	var job *entity.Job
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		job, err = p.loadJob(ctx, tx, id, false)
		return err
	})
	return job, err
}

// ListJobsByStatus returns up to limit jobs with the given status, newest first.
func (p *PostgresStore) ListJobsByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error) {
	query := `SELECT id FROM jobs WHERE status = $1 ORDER BY created_at DESC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, common.WrapError(err, "list jobs")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, common.WrapError(err, "collect job ids")
	}

	jobs := make([]*entity.Job, 0, len(ids))
	for _, id := range ids {
		job, err := p.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// SetRawText stores the extracted raw text on the job.
func (p *PostgresStore) SetRawText(ctx context.Context, id uuid.UUID, text string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE jobs SET raw_text = $1, updated_at = $2 WHERE id = $3`,
		text, time.Now().UTC(), id)
	if err != nil {
		return common.WrapError(err, "set raw text")
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ClaimStage performs the per-stage compare-and-set under a row lock.
func (p *PostgresStore) ClaimStage(ctx context.Context, id uuid.UUID, stage constants.Stage, attempt int) error {
	return p.mutate(ctx, id, stage, func(job *entity.Job, now time.Time) error {
		return claimStage(job, stage, attempt, now)
	})
}

// FinishStage applies the outcome and recomputes the aggregate status in one
// transaction.
func (p *PostgresStore) FinishStage(ctx context.Context, id uuid.UUID, stage constants.Stage, outcome StageOutcome) error {
	return p.mutate(ctx, id, stage, func(job *entity.Job, now time.Time) error {
		return finishStage(job, stage, outcome, now)
	})
}

// ResetStage opens a fresh attempt cycle for a permanently failed stage.
func (p *PostgresStore) ResetStage(ctx context.Context, id uuid.UUID, stage constants.Stage) error {
	return p.mutate(ctx, id, stage, func(job *entity.Job, now time.Time) error {
		return resetStage(job, stage, now)
	})
}

// Cancel marks the job cancelled.
func (p *PostgresStore) Cancel(ctx context.Context, id uuid.UUID) error {
	return p.mutate(ctx, id, "", func(job *entity.Job, now time.Time) error {
		return cancelJob(job, now)
	})
}

// DeleteJob removes the job row; stage slots cascade.
func (p *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return common.WrapError(err, "delete job")
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Ping verifies connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStore) mutate(ctx context.Context, id uuid.UUID, stage constants.Stage, fn func(job *entity.Job, now time.Time) error) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		job, err := p.loadJob(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(job, time.Now().UTC()); err != nil {
			return err
		}
		return p.saveJob(ctx, tx, job, stage)
	})
}

func (p *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return common.WrapError(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			p.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	return common.WrapError(tx.Commit(ctx), "commit tx")
}

func (p *PostgresStore) loadJob(ctx context.Context, tx pgx.Tx, id uuid.UUID, forUpdate bool) (*entity.Job, error) {
	query := `
		SELECT id, file_name, file_size, content_type, file_path, status,
		       error_message, raw_text, created_at, updated_at, processed_at
		FROM jobs WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		status string
		job    entity.Job
	)
	err := tx.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.FileName, &job.FileSize, &job.ContentType, &job.FilePath,
		&status, &job.Error, &job.RawText, &job.CreatedAt, &job.UpdatedAt, &job.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "load job")
	}
	job.Status = constants.JobStatus(status)
	job.Stages = make(map[constants.Stage]*entity.StageResult, len(constants.AllStages))

	rows, err := tx.Query(ctx, `
		SELECT stage, state, attempts, output, last_error, updated_at
		FROM stage_results WHERE job_id = $1`, id)
	if err != nil {
		return nil, common.WrapError(err, "load stage slots")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sr    entity.StageResult
			stage string
			state string
		)
		if err := rows.Scan(&stage, &state, &sr.Attempts, &sr.Output, &sr.LastError, &sr.UpdatedAt); err != nil {
			return nil, common.WrapError(err, "scan stage slot")
		}
		sr.Stage = constants.Stage(stage)
		sr.State = constants.StageState(state)
		slot := sr
		job.Stages[slot.Stage] = &slot
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate stage slots")
	}
	return &job, nil
}

// saveJob writes the job row and the touched stage slot. An empty stage
// writes every slot.
func (p *PostgresStore) saveJob(ctx context.Context, tx pgx.Tx, job *entity.Job, stage constants.Stage) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $1, error_message = $2, raw_text = $3, updated_at = $4, processed_at = $5
		WHERE id = $6`,
		string(job.Status), job.Error, job.RawText, job.UpdatedAt, job.ProcessedAt, job.ID)
	if err != nil {
		return common.WrapError(err, "update job")
	}

	stages := []constants.Stage{stage}
	if stage == "" {
		stages = constants.AllStages
	}
	for _, st := range stages {
		sr := job.Stages[st]
		if sr == nil {
			continue
		}
		_, err := tx.Exec(ctx, `
			UPDATE stage_results SET state = $1, attempts = $2, output = $3, last_error = $4, updated_at = $5
			WHERE job_id = $6 AND stage = $7`,
			string(sr.State), sr.Attempts, []byte(sr.Output), sr.LastError, sr.UpdatedAt, job.ID, string(st))
		if err != nil {
			return common.WrapError(err, fmt.Sprintf("update stage slot %s", st))
		}
	}
	return nil
}
