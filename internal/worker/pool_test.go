package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/queue"
)

func TestPoolProcessesTasks(t *testing.T) {
	b := queue.NewMemoryBroker()
	defer b.Close()

	processed := make(chan string, 10)
	e := newTestExecutor(b)
	e.Register(queue.TaskSendMail, func(_ context.Context, task *queue.Task) error {
		processed <- task.ID
		return nil
	})

	p := NewPool(b, testSendQueue, e, 2, logger.Nop())
	p.Start()
	defer p.Stop(context.Background())

	first := newSendTask(t, 3)
	second := newSendTask(t, 3)
	require.NoError(t, b.Enqueue(context.Background(), first))
	require.NoError(t, b.Enqueue(context.Background(), second))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-processed:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks to be processed")
		}
	}
	assert.True(t, got[first.ID])
	assert.True(t, got[second.ID])
}

func TestPoolStopWaitsForWorkers(t *testing.T) {
	b := queue.NewMemoryBroker()
	defer b.Close()

	e := newTestExecutor(b)
	p := NewPool(b, testSendQueue, e, 3, logger.Nop())
	p.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))

	// Stopping again is a no-op.
	require.NoError(t, p.Stop(ctx))
}

func TestPoolStartIsIdempotent(t *testing.T) {
	b := queue.NewMemoryBroker()
	defer b.Close()

	p := NewPool(b, testSendQueue, newTestExecutor(b), 1, logger.Nop())
	p.Start()
	p.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
}

func TestPoolStopsWhenBrokerCloses(t *testing.T) {
	b := queue.NewMemoryBroker()
	p := NewPool(b, testSendQueue, newTestExecutor(b), 2, logger.Nop())
	p.Start()

	require.NoError(t, b.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, p.Stop(ctx))
}
