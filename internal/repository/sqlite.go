package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"resume-insights/constants"
	"resume-insights/internal/common"
	"resume-insights/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    file_name     TEXT NOT NULL,
    file_size     INTEGER NOT NULL,
    content_type  TEXT NOT NULL DEFAULT '',
    file_path     TEXT NOT NULL,
    status        TEXT NOT NULL,
    error_message TEXT,
    raw_text      TEXT,
    created_at    TIMESTAMP NOT NULL,
    updated_at    TIMESTAMP NOT NULL,
    processed_at  TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stage_results (
    job_id     TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    stage      TEXT NOT NULL,
    state      TEXT NOT NULL,
    attempts   INTEGER NOT NULL DEFAULT 0,
    output     BLOB,
    last_error TEXT,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (job_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// SQLiteStore is a JobStore backed by an embedded SQLite database. SQLite
// serializes writers, so each mutation runs in a single IMMEDIATE-enough
// transaction and the compare-and-set checks in the transition helpers are
// race-free.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ JobStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the SQLite database at path and
// applies the schema. Use ":memory:" for an ephemeral store.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, common.WrapError(err, "open sqlite")
	}
	// A single connection keeps SQLite's writer lock out of the picture.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, common.WrapError(err, "apply sqlite schema")
	}

	logger.Info("sqlite store ready", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// CreateJob inserts the job row and one pending slot per stage.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *entity.Job) error {
	now := time.Now().UTC()
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (id, file_name, file_size, content_type, file_path, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID.String(), job.FileName, job.FileSize, job.ContentType, job.FilePath,
			string(constants.JobStatusPending), createdAt, now)
		if err != nil {
			return common.WrapError(err, "insert job")
		}
		for _, stage := range constants.AllStages {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO stage_results (job_id, stage, state, attempts, updated_at)
				VALUES (?, ?, ?, 0, ?)`,
				job.ID.String(), string(stage), string(constants.StageStatePending), now)
			if err != nil {
				return common.WrapError(err, "insert stage slot")
			}
		}
		return nil
	})
}

// GetJob loads a job and its stage slots.
func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	var job *entity.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		job, err = loadJobTx(ctx, tx, id)
		return err
	})
	return job, err
}

// ListJobsByStatus returns up to limit jobs with the given status, newest first.
func (s *SQLiteStore) ListJobsByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error) {
	query := `SELECT id FROM jobs WHERE status = ? ORDER BY created_at DESC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.WrapError(err, "list jobs")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, common.WrapError(err, "scan job id")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, common.WrapError(err, "parse job id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate jobs")
	}

	jobs := make([]*entity.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// SetRawText stores the extracted raw text on the job.
func (s *SQLiteStore) SetRawText(ctx context.Context, id uuid.UUID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET raw_text = ?, updated_at = ? WHERE id = ?`,
		text, time.Now().UTC(), id.String())
	if err != nil {
		return common.WrapError(err, "set raw text")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.WrapError(err, "set raw text")
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ClaimStage performs the per-stage compare-and-set inside one transaction.
func (s *SQLiteStore) ClaimStage(ctx context.Context, id uuid.UUID, stage constants.Stage, attempt int) error {
	return s.mutate(ctx, id, stage, func(job *entity.Job, now time.Time) error {
		return claimStage(job, stage, attempt, now)
	})
}

// FinishStage applies the outcome and recomputes the aggregate status in one
// transaction.
func (s *SQLiteStore) FinishStage(ctx context.Context, id uuid.UUID, stage constants.Stage, outcome StageOutcome) error {
	return s.mutate(ctx, id, stage, func(job *entity.Job, now time.Time) error {
		return finishStage(job, stage, outcome, now)
	})
}

// ResetStage opens a fresh attempt cycle for a permanently failed stage.
func (s *SQLiteStore) ResetStage(ctx context.Context, id uuid.UUID, stage constants.Stage) error {
	return s.mutate(ctx, id, stage, func(job *entity.Job, now time.Time) error {
		return resetStage(job, stage, now)
	})
}

// Cancel marks the job cancelled.
func (s *SQLiteStore) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, "", func(job *entity.Job, now time.Time) error {
		return cancelJob(job, now)
	})
}

// DeleteJob removes the job row; stage slots cascade.
func (s *SQLiteStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id.String())
	if err != nil {
		return common.WrapError(err, "delete job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.WrapError(err, "delete job")
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Ping verifies connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// mutate loads the job inside a transaction, applies fn, and writes the job
// row plus the touched stage slot back. An empty stage writes all slots.
func (s *SQLiteStore) mutate(ctx context.Context, id uuid.UUID, stage constants.Stage, fn func(job *entity.Job, now time.Time) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := loadJobTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(job, time.Now().UTC()); err != nil {
			return err
		}
		return saveJobTx(ctx, tx, job, stage)
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	return common.WrapError(tx.Commit(), "commit tx")
}

func loadJobTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*entity.Job, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, file_name, file_size, content_type, file_path, status,
		       error_message, raw_text, created_at, updated_at, processed_at
		FROM jobs WHERE id = ?`, id.String())

	var (
		rawID       string
		status      string
		errMsg      sql.NullString
		rawText     sql.NullString
		processedAt sql.NullTime
		job         entity.Job
	)
	err := row.Scan(&rawID, &job.FileName, &job.FileSize, &job.ContentType, &job.FilePath,
		&status, &errMsg, &rawText, &job.CreatedAt, &job.UpdatedAt, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "load job")
	}

	job.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, common.WrapError(err, "parse job id")
	}
	job.Status = constants.JobStatus(status)
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	if rawText.Valid {
		job.RawText = &rawText.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		job.ProcessedAt = &t
	}
	job.Stages = make(map[constants.Stage]*entity.StageResult, len(constants.AllStages))

	rows, err := tx.QueryContext(ctx, `
		SELECT stage, state, attempts, output, last_error, updated_at
		FROM stage_results WHERE job_id = ?`, id.String())
	if err != nil {
		return nil, common.WrapError(err, "load stage slots")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sr        entity.StageResult
			stage     string
			state     string
			lastError sql.NullString
		)
		if err := rows.Scan(&stage, &state, &sr.Attempts, &sr.Output, &lastError, &sr.UpdatedAt); err != nil {
			return nil, common.WrapError(err, "scan stage slot")
		}
		sr.Stage = constants.Stage(stage)
		sr.State = constants.StageState(state)
		if lastError.Valid {
			sr.LastError = &lastError.String
		}
		slot := sr
		job.Stages[slot.Stage] = &slot
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate stage slots")
	}
	return &job, nil
}

// saveJobTx writes the job row and the touched stage slot. An empty stage
// writes every slot.
func saveJobTx(ctx context.Context, tx *sql.Tx, job *entity.Job, stage constants.Stage) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error_message = ?, raw_text = ?, updated_at = ?, processed_at = ?
		WHERE id = ?`,
		string(job.Status), nullString(job.Error), nullString(job.RawText),
		job.UpdatedAt, nullTime(job.ProcessedAt), job.ID.String())
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
		_, err := tx.ExecContext(ctx, `
			UPDATE stage_results SET state = ?, attempts = ?, output = ?, last_error = ?, updated_at = ?
			WHERE job_id = ? AND stage = ?`,
			string(sr.State), sr.Attempts, []byte(sr.Output), nullString(sr.LastError),
			sr.UpdatedAt, job.ID.String(), string(st))
		if err != nil {
			return common.WrapError(err, fmt.Sprintf("update stage slot %s", st))
		}
	}
	return nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
