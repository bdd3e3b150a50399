package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/metrics"
	"github.com/lattiq/mailgate/internal/queue"
)

// Handler processes a dequeued task. A nil return acknowledges the task;
// an error hands it to the retry policy.
type Handler func(ctx context.Context, t *queue.Task) error

// Outcome is the terminal classification of one task execution.
type Outcome string

const (
	// OutcomeSucceeded means the handler returned nil.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeRescheduled means the handler failed and a retry copy was
	// parked on the delayed queue.
	OutcomeRescheduled Outcome = "rescheduled"

	// OutcomeExhausted means the handler failed with no retry budget left
	// and the task was routed to the dead-letter queue.
	OutcomeExhausted Outcome = "exhausted"
)

// Executor runs handlers and applies the retry policy: a failed task is
// re-enqueued with a flat delay until its attempt counter reaches the
// ceiling, then routed to the dead-letter queue exactly once.
type Executor struct {
	broker      queue.Broker
	deadLetters *DeadLetterRouter
	retryDelay  time.Duration
	handlers    map[string]Handler
	log         *logger.Logger
}

// NewExecutor creates an executor with no registered handlers.
func NewExecutor(broker queue.Broker, deadLetters *DeadLetterRouter, retryDelay time.Duration, log *logger.Logger) *Executor {
	return &Executor{
		broker:      broker,
		deadLetters: deadLetters,
		retryDelay:  retryDelay,
		handlers:    make(map[string]Handler),
		log:         log.WithComponent("executor"),
	}
}

// Register binds a handler to a task name.
func (e *Executor) Register(name string, h Handler) {
	e.handlers[name] = h
}

// Execute runs the task through its handler and settles the result.
func (e *Executor) Execute(ctx context.Context, t *queue.Task) Outcome {
	log := e.log.WithTask(t.ID, t.Name)

	h, ok := e.handlers[t.Name]
	if !ok {
		log.Error().Msg("no handler registered for task")
		return e.exhaust(ctx, t, fmt.Errorf("worker: no handler for task %q", t.Name))
	}

	start := time.Now()
	err := h(ctx, t)
	if err == nil {
		log.Info().
			Int("attempt", t.Attempt).
			Dur("duration", time.Since(start)).
			Msg("task succeeded")
		return OutcomeSucceeded
	}

	if t.Attempt < t.MaxAttempts {
		return e.reschedule(ctx, t, err, log)
	}
	return e.exhaust(ctx, t, err)
}

// reschedule parks a retry copy with the attempt counter advanced. If the
// broker refuses the copy the task falls through to the dead-letter queue
// so it is never silently lost.
func (e *Executor) reschedule(ctx context.Context, t *queue.Task, taskErr error, log *logger.Logger) Outcome {
	retry := *t
	retry.Attempt++
	retry.LastError = taskErr.Error()

	if err := e.broker.EnqueueIn(ctx, &retry, e.retryDelay); err != nil {
		log.Error().Err(err).Msg("failed to schedule retry")
		return e.exhaust(ctx, t, taskErr)
	}

	metrics.RetriesScheduled.Inc()
	log.Warn().
		Err(taskErr).
		Int("attempt", retry.Attempt).
		Int("max_attempts", retry.MaxAttempts).
		Dur("retry_in", e.retryDelay).
		Msg("task failed, retry scheduled")
	return OutcomeRescheduled
}

// exhaust routes the task to the dead-letter queue. Tasks already on the
// error queue are never routed back onto it; their failures only log, which
// keeps a broken error consumer from feeding itself.
func (e *Executor) exhaust(ctx context.Context, t *queue.Task, taskErr error) Outcome {
	log := e.log.WithTask(t.ID, t.Name)

	if t.Queue == e.deadLetters.Queue() {
		log.Error().Err(taskErr).Msg("error-queue task failed, dropping")
		return OutcomeExhausted
	}

	if err := e.deadLetters.Route(ctx, t, taskErr); err != nil {
		// Losing a dead letter means losing the failure record entirely,
		// so this is the loudest log the worker emits.
		log.Error().
			Err(err).
			AnErr("task_error", taskErr).
			Msg("FATAL: failed to publish dead letter, task lost")
	}
	return OutcomeExhausted
}
