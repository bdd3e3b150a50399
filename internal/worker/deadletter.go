package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lattiq/mailgate/internal/core"
	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/metrics"
	"github.com/lattiq/mailgate/internal/queue"
)

// DeadLetter is the record published to the error queue when a task
// exhausts its retry budget. The original envelope travels intact so the
// error consumer (or a human) can inspect or replay it.
type DeadLetter struct {
	TaskID      string          `json:"task_id"`
	Envelope    json.RawMessage `json:"envelope"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Errors      []string        `json:"errors"`
	FailedAt    time.Time       `json:"failed_at"`
}

// DeadLetterRouter publishes exhausted tasks onto a dedicated error queue,
// decoupled from the send queue so dead-lettered messages never re-enter
// the retry policy that exhausted them.
type DeadLetterRouter struct {
	broker    queue.Broker
	queueName string
	log       *logger.Logger
}

// NewDeadLetterRouter creates a router targeting the named error queue.
func NewDeadLetterRouter(broker queue.Broker, queueName string, log *logger.Logger) *DeadLetterRouter {
	return &DeadLetterRouter{
		broker:    broker,
		queueName: queueName,
		log:       log.WithComponent("deadletter"),
	}
}

// Queue returns the error queue name.
func (r *DeadLetterRouter) Queue() string {
	return r.queueName
}

// Route publishes the task and its failure context to the error queue.
// Error tasks carry MaxAttempts zero: a failure while consuming them is
// terminal, never another retry cycle.
func (r *DeadLetterRouter) Route(ctx context.Context, t *queue.Task, taskErr error) error {
	entry := DeadLetter{
		TaskID:      t.ID,
		Envelope:    t.Payload,
		Attempts:    t.Attempt,
		MaxAttempts: t.MaxAttempts,
		Errors:      failureDetails(taskErr),
		FailedAt:    time.Now().UTC(),
	}

	errTask, err := queue.NewTask(queue.TaskMailError, r.queueName, entry, 0)
	if err != nil {
		return err
	}
	if err := r.broker.Enqueue(ctx, errTask); err != nil {
		return err
	}

	metrics.DeadLettered.Inc()
	r.log.Warn().
		Str("task_id", t.ID).
		Int("attempts", t.Attempt).
		Strs("errors", entry.Errors).
		Msg("task routed to dead-letter queue")
	return nil
}

// failureDetails flattens a delivery failure into its per-transport error
// strings so the dead letter records both underlying causes.
func failureDetails(err error) []string {
	var dfe *core.DeliveryFailedError
	if errors.As(err, &dfe) {
		return []string{dfe.Primary.Error(), dfe.Fallback.Error()}
	}
	return []string{err.Error()}
}
