package queue

import (
	"context"
	"sync"
	"time"
)

// DelayedTask is a task parked in a memory broker together with its
// scheduling metadata. Exposed so tests can assert on backoff behavior.
type DelayedTask struct {
	Task    *Task
	Delay   time.Duration
	ReadyAt time.Time
}

// MemoryBroker implements Broker with in-process slices. It backs the unit
// tests and local development runs where Redis is not available; semantics
// match the Redis broker (FIFO per queue, delayed tasks invisible until
// due, at-least-once).
type MemoryBroker struct {
	mu      sync.Mutex
	queues  map[string][]*Task
	delayed map[string][]DelayedTask
	closed  bool
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:  make(map[string][]*Task),
		delayed: make(map[string][]DelayedTask),
	}
}

// Enqueue appends the task to its queue.
func (b *MemoryBroker) Enqueue(_ context.Context, t *Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.queues[t.Queue] = append(b.queues[t.Queue], t)
	return nil
}

// EnqueueIn parks the task until the delay elapses.
func (b *MemoryBroker) EnqueueIn(_ context.Context, t *Task, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.delayed[t.Queue] = append(b.delayed[t.Queue], DelayedTask{
		Task:    t,
		Delay:   delay,
		ReadyAt: time.Now().Add(delay),
	})
	return nil
}

// Dequeue pops the oldest ready task, promoting due delayed tasks first.
// It waits briefly when the queue is empty and returns (nil, nil) on idle.
func (b *MemoryBroker) Dequeue(ctx context.Context, queueName string) (*Task, error) {
	deadline := time.Now().Add(50 * time.Millisecond)

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b.promoteLocked(queueName)

		if q := b.queues[queueName]; len(q) > 0 {
			t := q[0]
			b.queues[queueName] = q[1:]
			return t, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		// Poll rather than block on a producer signal: delayed tasks
		// become due by clock, so the loop has to wake up regardless.
		b.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		b.mu.Lock()
	}
}

// Ping always succeeds while the broker is open.
func (b *MemoryBroker) Ping(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the broker closed; polling consumers observe it on their
// next iteration.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Len returns the number of ready tasks on a queue.
func (b *MemoryBroker) Len(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queueName])
}

// Delayed returns a snapshot of the parked tasks for a queue.
func (b *MemoryBroker) Delayed(queueName string) []DelayedTask {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DelayedTask, len(b.delayed[queueName]))
	copy(out, b.delayed[queueName])
	return out
}

// promoteLocked moves due delayed tasks onto the ready queue. Caller holds
// the lock.
func (b *MemoryBroker) promoteLocked(queueName string) {
	now := time.Now()
	var remaining []DelayedTask
	for _, d := range b.delayed[queueName] {
		if !d.ReadyAt.After(now) {
			b.queues[queueName] = append(b.queues[queueName], d.Task)
			continue
		}
		remaining = append(remaining, d)
	}
	b.delayed[queueName] = remaining
}
