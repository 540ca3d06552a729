package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"resume-insights/internal/entity"
)

const (
	pendingKey  = "resume-insights:tasks:pending"
	inflightKey = "resume-insights:tasks:inflight"
)

// claimScript atomically moves the earliest eligible member from one sorted
// set into another with a new score. Used both to claim a pending task into
// the in-flight set and to sweep expired in-flight tasks back to pending.
var claimScript = goredis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #members == 0 then
	return false
end
redis.call('ZREM', KEYS[1], members[1])
redis.call('ZADD', KEYS[2], ARGV[2], members[1])
return members[1]
`)

// RedisBroker is a Broker backed by two Redis sorted sets: pending tasks
// scored by their not-before time and in-flight tasks scored by their
// redelivery deadline. Tasks survive worker crashes; the sweeper reclaims
// deliveries whose visibility timeout expired.
type RedisBroker struct {
	client            *goredis.Client
	logger            *slog.Logger
	visibilityTimeout time.Duration
	pollInterval      time.Duration

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// RedisOption configures a RedisBroker.
type RedisOption func(*RedisBroker)

// WithRedisVisibilityTimeout sets the redelivery deadline for unacked tasks.
func WithRedisVisibilityTimeout(d time.Duration) RedisOption {
	return func(b *RedisBroker) {
		if d > 0 {
			b.visibilityTimeout = d
		}
	}
}

// WithRedisPollInterval sets how often Dequeue and the sweeper poll Redis.
func WithRedisPollInterval(d time.Duration) RedisOption {
	return func(b *RedisBroker) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// NewRedisBroker creates a started Redis-backed broker.
func NewRedisBroker(client *goredis.Client, logger *slog.Logger, opts ...RedisOption) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &RedisBroker{
		client:            client,
		logger:            logger,
		visibilityTimeout: 30 * time.Second,
		pollInterval:      250 * time.Millisecond,
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
func (b *RedisBroker) Enqueue(ctx context.Context, t entity.Task) error {
	return b.EnqueueAfter(ctx, t, 0)
}

// EnqueueAfter schedules the task for delivery after delay.
func (b *RedisBroker) EnqueueAfter(ctx context.Context, t entity.Task, delay time.Duration) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("queue/redis: marshal task: %w", err)
	}
	score := float64(time.Now().Add(delay).UnixMilli())
	if err := b.client.ZAdd(ctx, pendingKey, goredis.Z{Score: score, Member: string(payload)}).Err(); err != nil {
		return fmt.Errorf("queue/redis: enqueue: %w", err)
	}
	return nil
}

// Dequeue blocks until a task is claimed or ctx is done.
func (b *RedisBroker) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		d, err := b.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
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

func (b *RedisBroker) tryClaim(ctx context.Context) (*Delivery, error) {
	now := time.Now()
	deadline := now.Add(b.visibilityTimeout)

	res, err := claimScript.Run(ctx, b.client,
		[]string{pendingKey, inflightKey},
		now.UnixMilli(), deadline.UnixMilli(),
	).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue/redis: claim: %w", err)
	}

	payload, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("queue/redis: claim returned %T", res)
	}

	var t entity.Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		// Poison member: drop it rather than wedge the queue.
		b.client.ZRem(context.Background(), inflightKey, payload)
		return nil, fmt.Errorf("queue/redis: decode task: %w", err)
	}

	return &Delivery{
		Task: t,
		ack: func() {
			if err := b.client.ZRem(context.Background(), inflightKey, payload).Err(); err != nil {
				b.logger.Error("ack failed", "error", err, "job_id", t.JobID, "stage", t.Stage)
			}
		},
		nack: func() {
			pipe := b.client.TxPipeline()
			pipe.ZRem(context.Background(), inflightKey, payload)
			pipe.ZAdd(context.Background(), pendingKey, goredis.Z{
				Score:  float64(time.Now().UnixMilli()),
				Member: payload,
			})
			if _, err := pipe.Exec(context.Background()); err != nil {
				b.logger.Error("nack failed", "error", err, "job_id", t.JobID, "stage", t.Stage)
			}
		},
	}, nil
}

// sweepLoop moves in-flight tasks whose deadline passed back to pending.
func (b *RedisBroker) sweepLoop() {
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

func (b *RedisBroker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now().UnixMilli()
	for {
		res, err := claimScript.Run(ctx, b.client,
			[]string{inflightKey, pendingKey},
			now, now,
		).Result()
		if err == goredis.Nil {
			return
		}
		if err != nil {
			b.logger.Error("sweep failed", "error", err)
			return
		}
		b.logger.Warn("redelivering expired task", "payload", res)
	}
}

// Close stops the sweeper. Tasks stay in Redis for the next broker instance.
func (b *RedisBroker) Close() error {
	b.once.Do(func() { close(b.stopCh) })
	b.wg.Wait()
	return nil
}
