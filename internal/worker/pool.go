// Package worker consumes queued tasks: a pool of goroutines drains a
// queue through an executor that applies the retry and dead-letter policy.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/queue"
)

// Pool runs a fixed number of consumer goroutines against one queue.
type Pool struct {
	broker      queue.Broker
	queueName   string
	executor    *Executor
	concurrency int
	log         *logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPool creates a pool of the given concurrency for one queue.
func NewPool(broker queue.Broker, queueName string, executor *Executor, concurrency int, log *logger.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		broker:      broker,
		queueName:   queueName,
		executor:    executor,
		concurrency: concurrency,
		log:         log.WithComponent("worker." + queueName),
	}
}

// Start launches the consumer goroutines. Starting a running pool is a
// no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})

	p.log.Info().Int("concurrency", p.concurrency).Msg("starting workers")
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

// Stop signals the consumers and waits for in-flight tasks to finish or
// the context to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("workers stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is one consumer loop: block on the queue, execute, repeat.
func (p *Pool) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		t, err := p.broker.Dequeue(context.Background(), p.queueName)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return
			}
			p.log.Error().Err(err).Msg("dequeue failed")
			// Back off so a down broker does not spin the loop hot.
			select {
			case <-p.stopCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if t == nil {
			continue
		}

		p.executor.Execute(context.Background(), t)
	}
}
