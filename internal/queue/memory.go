package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"resume-insights/internal/entity"
)

// MemoryBroker is an in-process Broker backed by a mutex-guarded ready list
// and an in-flight table swept for visibility-timeout expiries. Used as the
// default single-node broker and by tests.
type MemoryBroker struct {
	logger            *slog.Logger
	visibilityTimeout time.Duration
	pollInterval      time.Duration

	mu       sync.Mutex
	pending  []pendingTask
	inflight map[int64]inflightTask
	nextID   int64
	closed   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type pendingTask struct {
	task      entity.Task
	notBefore time.Time
}

type inflightTask struct {
	task     entity.Task
	deadline time.Time
}

// MemoryOption configures a MemoryBroker.
type MemoryOption func(*MemoryBroker)

// WithVisibilityTimeout sets how long a dequeued-but-unacked task stays
// invisible before it is redelivered.
func WithVisibilityTimeout(d time.Duration) MemoryOption {
	return func(b *MemoryBroker) {
		if d > 0 {
			b.visibilityTimeout = d
		}
	}
}

// WithPollInterval sets how often blocked Dequeue calls and the redelivery
// sweeper re-check state.
func WithPollInterval(d time.Duration) MemoryOption {
	return func(b *MemoryBroker) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// NewMemoryBroker creates a started in-process broker.
func NewMemoryBroker(logger *slog.Logger, opts ...MemoryOption) *MemoryBroker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &MemoryBroker{
		logger:            logger,
		visibilityTimeout: 30 * time.Second,
		pollInterval:      20 * time.Millisecond,
		inflight:          make(map[int64]inflightTask),
		stopCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.wg.Add(1)
	go b.sweepLoop()
	return b
}

// Enqueue makes the task deliverable immediately.
func (b *MemoryBroker) Enqueue(ctx context.Context, t entity.Task) error {
	return b.EnqueueAfter(ctx, t, 0)
}

// EnqueueAfter makes the task deliverable once delay has elapsed.
func (b *MemoryBroker) EnqueueAfter(_ context.Context, t entity.Task, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	b.pending = append(b.pending, pendingTask{task: t, notBefore: time.Now().Add(delay)})
	return nil
}

// Dequeue blocks until a deliverable task exists or ctx is done.
func (b *MemoryBroker) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		if d, ok := b.tryClaim(); ok {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.stopCh:
			return nil, ErrClosed
		case <-time.After(b.pollInterval):
		}
	}
}

// tryClaim pops the first eligible pending task into the in-flight table.
func (b *MemoryBroker) tryClaim() (*Delivery, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}

	now := time.Now()
	for i, p := range b.pending {
		if p.notBefore.After(now) {
			continue
		}
		b.pending = append(b.pending[:i], b.pending[i+1:]...)

		b.nextID++
		id := b.nextID
		b.inflight[id] = inflightTask{task: p.task, deadline: now.Add(b.visibilityTimeout)}

		task := p.task
		return &Delivery{
			Task: task,
			ack:  func() { b.settle(id) },
			nack: func() { b.requeue(id) },
		}, true
	}
	return nil, false
}

func (b *MemoryBroker) settle(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, id)
}

func (b *MemoryBroker) requeue(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.inflight[id]
	if !ok {
		return
	}
	delete(b.inflight, id)
	b.pending = append(b.pending, pendingTask{task: entry.task, notBefore: time.Now()})
}

// sweepLoop redelivers in-flight tasks whose visibility timeout has expired.
func (b *MemoryBroker) sweepLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

func (b *MemoryBroker) sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for id, entry := range b.inflight {
		if entry.deadline.After(now) {
			continue
		}
		delete(b.inflight, id)
		b.pending = append(b.pending, pendingTask{task: entry.task, notBefore: now})
		b.logger.Warn("redelivering expired task",
			"job_id", entry.task.JobID,
			"stage", entry.task.Stage,
			"attempt", entry.task.Attempt,
		)
	}
}

// Close stops the sweeper. Pending and in-flight tasks are dropped; the
// broker is transient by contract.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stopCh)
	b.wg.Wait()
	return nil
}
