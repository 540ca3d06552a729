// Package worker runs the stage tasks. A pool of goroutines drains the task
// broker; each task is claimed against the job store, executed with a
// per-stage deadline, and its outcome persisted before the delivery is
// acknowledged. If a worker dies mid-task the unacked delivery resurfaces
// after the broker's visibility timeout and the claim protocol decides
// whether the redelivery reruns or drops.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"resume-insights/constants"
	"resume-insights/internal/common"
	"resume-insights/internal/entity"
	"resume-insights/internal/pipeline"
	"resume-insights/internal/queue"
	"resume-insights/internal/repository"
)

// Notifier observes job transitions, e.g. to fan them out over websockets.
type Notifier func(jobID uuid.UUID, stage constants.Stage, status constants.JobStatus)

// Pool drains the broker with a fixed number of workers.
type Pool struct {
	store        repository.JobStore
	broker       queue.Broker
	executors    map[constants.Stage]pipeline.Executor
	policy       RetryPolicy
	workers      int
	stageTimeout time.Duration
	notify       Notifier
	logger       *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(p *Pool) { p.policy = policy }
}

// WithStageTimeout bounds a single stage execution.
func WithStageTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.stageTimeout = d
		}
	}
}

// WithNotifier registers a job transition observer.
func WithNotifier(n Notifier) Option {
	return func(p *Pool) { p.notify = n }
}

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a worker pool over the given store, broker and executors.
func NewPool(store repository.JobStore, broker queue.Broker, executors map[constants.Stage]pipeline.Executor, opts ...Option) *Pool {
	p := &Pool{
		store:        store,
		broker:       broker,
		executors:    executors,
		policy:       DefaultRetryPolicy(),
		workers:      4,
		stageTimeout: 2 * time.Minute,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines. They stop when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	logger := p.logger.With("worker", id)
	for {
		delivery, err := p.broker.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return
			}
			logger.Error("dequeue failed", "error", err)
			continue
		}
		p.handle(ctx, logger, delivery)
	}
}

// handle runs one delivered task to a durable outcome. The delivery is acked
// in every path where the outcome (including "drop this duplicate") is
// recorded, and nacked only when a transient store or broker failure kept us
// from recording anything.
func (p *Pool) handle(ctx context.Context, logger *slog.Logger, delivery *queue.Delivery) {
	task := delivery.Task
	logger = logger.With("job_id", task.JobID, "stage", task.Stage, "attempt", task.Attempt)

	err := p.store.ClaimStage(ctx, task.JobID, task.Stage, task.Attempt)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrStageConflict):
		// Duplicate or stale delivery. The persisted outcome may have lost
		// its follow-up task to a crash, so re-issue whatever is missing
		// before dropping the duplicate.
		p.recoverLostWork(ctx, logger, task)
		delivery.Ack()
		return
	case errors.Is(err, common.ErrJobCancelled), errors.Is(err, common.ErrJobTerminal), errors.Is(err, common.ErrNotFound):
		logger.Debug("dropping task", "reason", err)
		delivery.Ack()
		return
	default:
		logger.Error("claim failed", "error", err)
		delivery.Nack()
		return
	}

	job, err := p.store.GetJob(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			delivery.Ack()
			return
		}
		logger.Error("load job failed", "error", err)
		delivery.Nack()
		return
	}
	p.emit(task, job.Status)

	exec, ok := p.executors[task.Stage]
	if !ok {
		// No executor can ever serve this stage; fail it permanently.
		logger.Error("no executor for stage")
		p.finish(ctx, logger, delivery, task, repository.StageOutcome{
			State:     constants.StageStateFailed,
			LastError: "no executor registered for stage " + string(task.Stage),
		}, nil)
		return
	}

	execCtx, cancel := context.WithTimeout(common.WithJobID(ctx, task.JobID), p.stageTimeout)
	output, execErr := exec.Execute(execCtx, job)
	cancel()

	if execErr == nil {
		p.finish(ctx, logger, delivery, task, repository.StageOutcome{
			State:  constants.StageStateSucceeded,
			Output: output,
		}, constants.Successors(task.Stage))
		return
	}

	if retry, delay := p.policy.Disposition(execErr, task.Attempt); retry {
		logger.Warn("stage attempt failed, retrying",
			"error", execErr, "delay", delay, "next_attempt", task.Attempt+1)
		if !p.persist(ctx, logger, delivery, task, repository.StageOutcome{
			State:     constants.StageStatePending,
			LastError: execErr.Error(),
		}) {
			return
		}
		retryTask := entity.Task{
			JobID:      task.JobID,
			Stage:      task.Stage,
			Attempt:    task.Attempt + 1,
			EnqueuedAt: time.Now().UTC(),
		}
		// The retry must be durably queued before the delivery is acked;
		// acking first would let a broker failure here consume the attempt
		// without ever rescheduling it. A nacked redelivery of the old
		// attempt loses the claim CAS and re-issues the retry from there.
		if err := p.broker.EnqueueAfter(ctx, retryTask, delay); err != nil {
			logger.Error("schedule retry failed", "error", err)
			delivery.Nack()
			return
		}
		delivery.Ack()
		return
	}

	logger.Error("stage failed permanently", "error", execErr)
	p.finish(ctx, logger, delivery, task, repository.StageOutcome{
		State:     constants.StageStateFailed,
		LastError: execErr.Error(),
	}, nil)
}

// persist records the outcome without resolving the delivery on success.
// Returns false when the delivery was already resolved here (late or
// duplicate outcome rejected by the store and acked, or a transient failure
// that nacked).
func (p *Pool) persist(ctx context.Context, logger *slog.Logger, delivery *queue.Delivery, task entity.Task, outcome repository.StageOutcome) bool {
	err := p.store.FinishStage(ctx, task.JobID, task.Stage, outcome)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrStageConflict),
		errors.Is(err, common.ErrJobCancelled),
		errors.Is(err, common.ErrJobTerminal),
		errors.Is(err, common.ErrNotFound):
		// Another worker's outcome already landed, or the job is gone.
		logger.Debug("outcome dropped", "reason", err)
		delivery.Ack()
		return false
	default:
		logger.Error("persist outcome failed", "error", err)
		delivery.Nack()
		return false
	}

	if updated, err := p.store.GetJob(ctx, task.JobID); err == nil {
		p.emit(task, updated.Status)
	}
	return true
}

// finish persists the outcome, fans out successors on success, and acks.
// Returns false when the delivery was already resolved.
func (p *Pool) finish(ctx context.Context, logger *slog.Logger, delivery *queue.Delivery, task entity.Task, outcome repository.StageOutcome, successors []constants.Stage) bool {
	if !p.persist(ctx, logger, delivery, task, outcome) {
		return false
	}

	for _, next := range successors {
		t := entity.Task{
			JobID:      task.JobID,
			Stage:      next,
			Attempt:    1,
			EnqueuedAt: time.Now().UTC(),
		}
		if err := p.broker.Enqueue(ctx, t); err != nil {
			// Leave the delivery unacked; the redelivery path re-issues
			// successors via recoverLostWork.
			logger.Error("enqueue successor failed", "stage", next, "error", err)
			delivery.Nack()
			return false
		}
	}

	delivery.Ack()
	return true
}

func (p *Pool) emit(task entity.Task, status constants.JobStatus) {
	if p.notify != nil {
		p.notify(task.JobID, task.Stage, status)
	}
}

// recoverLostWork re-issues tasks a crash may have swallowed after an outcome
// was persisted but before its follow-up reached the broker. A redelivered
// duplicate that loses the claim CAS lands here: if its stage already
// succeeded, successors still at zero attempts are re-enqueued; if its stage
// is pending with the delivered attempt consumed, the recorded retryable
// failure lost its retry task, so the next attempt is rescheduled. Duplicate
// re-issues are harmless: they lose the CAS or rerun the same attempt.
func (p *Pool) recoverLostWork(ctx context.Context, logger *slog.Logger, task entity.Task) {
	job, err := p.store.GetJob(ctx, task.JobID)
	if err != nil || job.Status.Terminal() {
		return
	}

	sr := job.Stage(task.Stage)
	switch {
	case sr.State == constants.StageStateSucceeded:
		for _, next := range constants.Successors(task.Stage) {
			slot := job.Stage(next)
			if slot.State != constants.StageStatePending || slot.Attempts != 0 {
				continue
			}
			t := entity.Task{
				JobID:      task.JobID,
				Stage:      next,
				Attempt:    1,
				EnqueuedAt: time.Now().UTC(),
			}
			if err := p.broker.Enqueue(ctx, t); err != nil {
				logger.Error("reissue successor failed", "stage", next, "error", err)
			}
		}
	case sr.State == constants.StageStatePending && sr.Attempts == task.Attempt:
		t := entity.Task{
			JobID:      task.JobID,
			Stage:      task.Stage,
			Attempt:    sr.Attempts + 1,
			EnqueuedAt: time.Now().UTC(),
		}
		if err := p.broker.EnqueueAfter(ctx, t, p.policy.Backoff.Delay(sr.Attempts)); err != nil {
			logger.Error("reissue retry failed", "error", err)
		}
	}
}
