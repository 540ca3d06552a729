package queue

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"resume-insights/constants"
	"resume-insights/internal/entity"
)

func testBroker(t *testing.T, opts ...MemoryOption) *MemoryBroker {
	t.Helper()
	b := NewMemoryBroker(slog.Default(), opts...)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newTask(stage constants.Stage, attempt int) entity.Task {
	return entity.Task{
		JobID:      uuid.New(),
		Stage:      stage,
		Attempt:    attempt,
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestEnqueueDequeueAck(t *testing.T) {
	t.Parallel()
	b := testBroker(t)
	ctx := context.Background()

	want := newTask(constants.StageExtract, 1)
	if err := b.Enqueue(ctx, want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	d, err := b.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if d.Task.JobID != want.JobID || d.Task.Stage != want.Stage || d.Task.Attempt != want.Attempt {
		t.Fatalf("Dequeue returned %+v, want %+v", d.Task, want)
	}
	d.Ack()

	// Acked task must never come back.
	ctx2, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if _, err := b.Dequeue(ctx2); err != context.DeadlineExceeded {
		t.Fatalf("Dequeue after ack = %v, want deadline exceeded", err)
	}
}

func TestNackRedelivers(t *testing.T) {
	t.Parallel()
	b := testBroker(t)
	ctx := context.Background()

	want := newTask(constants.StageParse, 1)
	if err := b.Enqueue(ctx, want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	d, err := b.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	d.Nack()

	d2, err := b.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue after nack: %v", err)
	}
	if d2.Task.JobID != want.JobID {
		t.Fatalf("redelivered task %v, want %v", d2.Task.JobID, want.JobID)
	}
	d2.Ack()
}

func TestVisibilityTimeoutRedelivery(t *testing.T) {
	t.Parallel()
	b := testBroker(t,
		WithVisibilityTimeout(50*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
	)
	ctx := context.Background()

	want := newTask(constants.StageBias, 1)
	if err := b.Enqueue(ctx, want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Claim and "crash": never ack.
	if _, err := b.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	d, err := b.Dequeue(ctx2)
	if err != nil {
		t.Fatalf("expected redelivery after visibility timeout, got %v", err)
	}
	if d.Task.JobID != want.JobID {
		t.Fatalf("redelivered %v, want %v", d.Task.JobID, want.JobID)
	}
	d.Ack()
}

func TestEnqueueAfterDelaysDelivery(t *testing.T) {
	t.Parallel()
	b := testBroker(t, WithPollInterval(5*time.Millisecond))
	ctx := context.Background()

	if err := b.EnqueueAfter(ctx, newTask(constants.StageSalary, 2), 150*time.Millisecond); err != nil {
		t.Fatalf("EnqueueAfter: %v", err)
	}

	// Not deliverable yet.
	early, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := b.Dequeue(early); err != context.DeadlineExceeded {
		t.Fatalf("task delivered before delay elapsed (err=%v)", err)
	}

	late, cancel2 := context.WithTimeout(ctx, time.Second)
	defer cancel2()
	d, err := b.Dequeue(late)
	if err != nil {
		t.Fatalf("Dequeue after delay: %v", err)
	}
	d.Ack()
}

func TestDequeueOrderFIFOAmongEligible(t *testing.T) {
	t.Parallel()
	b := testBroker(t)
	ctx := context.Background()

	first := newTask(constants.StageExtract, 1)
	second := newTask(constants.StageExtract, 1)
	if err := b.Enqueue(ctx, first); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := b.Enqueue(ctx, second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	d1, err := b.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if d1.Task.JobID != first.JobID {
		t.Fatalf("expected FIFO order, got %v first", d1.Task.JobID)
	}
	d1.Ack()
}

func TestClosedBrokerRejects(t *testing.T) {
	t.Parallel()
	b := NewMemoryBroker(slog.Default())
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := b.Enqueue(context.Background(), newTask(constants.StageExtract, 1)); err != ErrClosed {
		t.Fatalf("Enqueue on closed broker = %v, want ErrClosed", err)
	}
	if _, err := b.Dequeue(context.Background()); err != ErrClosed {
		t.Fatalf("Dequeue on closed broker = %v, want ErrClosed", err)
	}
}
