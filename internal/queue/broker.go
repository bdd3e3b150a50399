package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by broker operations after Close.
var ErrClosed = errors.New("queue: broker closed")

// Broker is the durable, at-least-once transport between the API boundary
// and the worker pool. Implementations must tolerate duplicate delivery;
// consumers are expected to as well.
//
// Retry scheduling is application-driven: the worker re-enqueues failed
// tasks with EnqueueIn rather than relying on broker-native TTL forwarding,
// so exactly one redelivery mechanism is in play.
type Broker interface {
	// Enqueue makes the task immediately available on its queue.
	Enqueue(ctx context.Context, t *Task) error

	// EnqueueIn makes the task available on its queue after the delay.
	EnqueueIn(ctx context.Context, t *Task, delay time.Duration) error

	// Dequeue blocks up to the broker's poll timeout waiting for a task on
	// the named queue. It returns (nil, nil) when the queue stayed empty,
	// so callers can loop without treating idleness as an error.
	Dequeue(ctx context.Context, queueName string) (*Task, error)

	// Ping verifies the broker connection is healthy.
	Ping(ctx context.Context) error

	// Close releases broker resources. Pending tasks stay durable where
	// the backend allows it.
	Close() error
}
