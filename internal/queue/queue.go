// Package queue provides the at-least-once task broker between the
// submission gateway and the worker pool. A dequeued task that is never
// acknowledged becomes eligible for redelivery after the broker's
// visibility timeout, so a worker crash can only delay a task, not lose it.
package queue

import (
	"context"
	"errors"
	"time"

	"resume-insights/internal/entity"
)

// ErrClosed is returned by operations on a broker that has been shut down.
var ErrClosed = errors.New("queue: broker closed")

// Delivery is one claimed task plus its acknowledgement handle. Ownership of
// the task transfers to the claiming worker until Ack or Nack is called.
type Delivery struct {
	Task entity.Task

	ack  func()
	nack func()
}

// Ack removes the task from the broker permanently. Safe to call once.
func (d *Delivery) Ack() {
	if d.ack != nil {
		d.ack()
	}
}

// Nack returns the task to the queue for immediate redelivery.
func (d *Delivery) Nack() {
	if d.nack != nil {
		d.nack()
	}
}

// Broker is the ordered, at-least-once delivery channel carrying stage tasks.
type Broker interface {
	// Enqueue makes the task available for delivery immediately.
	Enqueue(ctx context.Context, t entity.Task) error

	// EnqueueAfter makes the task available once the delay has elapsed.
	// Used by the retry policy to schedule backed-off attempts.
	EnqueueAfter(ctx context.Context, t entity.Task, delay time.Duration) error

	// Dequeue blocks until a task is available or ctx is done. The returned
	// delivery must be acked or nacked exactly once.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Close stops redelivery bookkeeping and releases resources.
	Close() error
}
