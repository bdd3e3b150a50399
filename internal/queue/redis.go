package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/metrics"
)

const (
	queueKeyPrefix   = "mailgate:queue:"
	delayedKeyPrefix = "mailgate:delayed:"

	promoteInterval = time.Second
	promoteBatch    = 100
)

// RedisBroker implements Broker on Redis. Ready tasks live in a list per
// queue (LPUSH/BRPOP); delayed tasks live in a per-queue sorted set scored
// by their ready-at time, and a promoter goroutine moves due members onto
// the list. Delivery is at-least-once: a promoter crash between ZREM and
// LPUSH can duplicate or drop a single promotion cycle, which the pipeline
// tolerates by design of the broker contract.
type RedisBroker struct {
	client      *redis.Client
	queues      []string
	pollTimeout time.Duration
	log         *logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRedisBroker creates a broker over an existing Redis client and starts
// the delayed-task promoter for the given queues. The caller keeps
// ownership of the client.
func NewRedisBroker(client *redis.Client, queues []string, pollTimeout time.Duration, log *logger.Logger) *RedisBroker {
	if pollTimeout <= 0 {
		pollTimeout = 2 * time.Second
	}
	b := &RedisBroker{
		client:      client,
		queues:      queues,
		pollTimeout: pollTimeout,
		log:         log.WithComponent("queue.redis"),
		stopCh:      make(chan struct{}),
	}

	b.wg.Add(1)
	go b.promoteLoop()

	return b
}

// Enqueue pushes the task onto its queue's ready list.
func (b *RedisBroker) Enqueue(ctx context.Context, t *Task) error {
	if b.isClosed() {
		return ErrClosed
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}
	if err := b.client.LPush(ctx, queueKey(t.Queue), raw).Err(); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	metrics.TasksEnqueued.WithLabelValues(t.Queue).Inc()
	return nil
}

// EnqueueIn parks the task in the delayed set until the delay elapses.
func (b *RedisBroker) EnqueueIn(ctx context.Context, t *Task, delay time.Duration) error {
	if b.isClosed() {
		return ErrClosed
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	err = b.client.ZAdd(ctx, delayedKey(t.Queue), redis.Z{Score: readyAt, Member: raw}).Err()
	if err != nil {
		return fmt.Errorf("queue: enqueue delayed: %w", err)
	}
	metrics.TasksEnqueued.WithLabelValues(t.Queue).Inc()
	return nil
}

// Dequeue blocks up to the poll timeout on the queue's ready list.
func (b *RedisBroker) Dequeue(ctx context.Context, queueName string) (*Task, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	vals, err := b.client.BRPop(ctx, b.pollTimeout, queueKey(queueName)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	// BRPOP returns [key, value].
	var t Task
	if err := json.Unmarshal([]byte(vals[1]), &t); err != nil {
		return nil, fmt.Errorf("queue: unmarshal task: %w", err)
	}
	return &t, nil
}

// Ping verifies the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close stops the promoter. The Redis client is owned by the caller and is
// not closed here.
func (b *RedisBroker) Close() error {
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

func (b *RedisBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// promoteLoop periodically moves due delayed tasks onto their ready lists.
func (b *RedisBroker) promoteLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			for _, q := range b.queues {
				if err := b.promote(context.Background(), q); err != nil {
					b.log.Error().Err(err).Str("queue", q).Msg("failed to promote delayed tasks")
				}
			}
		}
	}
}

// promote moves members of the delayed set whose score has passed onto the
// ready list. ZREM is the claim: with multiple promoters only the one that
// removed the member pushes it, keeping redelivery single-shot per cycle.
func (b *RedisBroker) promote(ctx context.Context, queueName string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := b.client.ZRangeByScore(ctx, delayedKey(queueName), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range due {
		removed, zErr := b.client.ZRem(ctx, delayedKey(queueName), member).Result()
		if zErr != nil {
			return zErr
		}
		if removed == 0 {
			continue
		}
		if pErr := b.client.LPush(ctx, queueKey(queueName), member).Err(); pErr != nil {
			return pErr
		}
	}
	return nil
}

func queueKey(name string) string {
	return queueKeyPrefix + name
}

func delayedKey(name string) string {
	return delayedKeyPrefix + name
}
