package worker

import (
	"context"
	"fmt"

	"github.com/lattiq/mailgate/internal/core"
	"github.com/lattiq/mailgate/internal/delivery"
	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/queue"
)

// NewSendMailHandler returns the handler for queued send tasks: decode the
// envelope, hand it to the delivery coordinator.
func NewSendMailHandler(coordinator *delivery.Coordinator, log *logger.Logger) Handler {
	log = log.WithComponent("handler.send")

	return func(ctx context.Context, t *queue.Task) error {
		var env core.Envelope
		if err := t.DecodePayload(&env); err != nil {
			return fmt.Errorf("worker: decode envelope: %w", err)
		}

		result, err := coordinator.Send(ctx, &env)
		if err != nil {
			return err
		}

		log.Info().
			Str("task_id", t.ID).
			Str("transport", result.Transport).
			Str("from", env.From.Email).
			Int("recipients", env.TotalRecipients()).
			Msg("mail delivered")
		return nil
	}
}

// NewMailErrorHandler returns the error-queue consumer. Dead letters are
// surfaced as structured error logs with the full envelope attached; there
// is nothing further to deliver, so the handler itself cannot usefully
// retry anything.
func NewMailErrorHandler(log *logger.Logger) Handler {
	log = log.WithComponent("handler.error")

	return func(_ context.Context, t *queue.Task) error {
		var entry DeadLetter
		if err := t.DecodePayload(&entry); err != nil {
			return fmt.Errorf("worker: decode dead letter: %w", err)
		}

		log.Error().
			Str("task_id", entry.TaskID).
			Int("attempts", entry.Attempts).
			Int("max_attempts", entry.MaxAttempts).
			Strs("errors", entry.Errors).
			Time("failed_at", entry.FailedAt).
			RawJSON("envelope", entry.Envelope).
			Msg("mail delivery permanently failed")
		return nil
	}
}
