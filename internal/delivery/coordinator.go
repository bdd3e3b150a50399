// Package delivery orchestrates the primary-then-fallback attempt sequence
// for a single envelope.
package delivery

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lattiq/mailgate/internal/core"
	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/metrics"
	"github.com/lattiq/mailgate/internal/transport"
)

// Coordinator tries the primary transport and falls back to the secondary
// on any transport failure. There is no sticky failover state: every call
// starts at the primary again, so a recovered relay is picked up on the
// next delivery without a probe cycle.
type Coordinator struct {
	primary  transport.Transport
	fallback transport.Transport
	tracer   trace.Tracer
	log      *logger.Logger
}

// New creates a delivery coordinator.
func New(primary, fallback transport.Transport, log *logger.Logger) *Coordinator {
	return &Coordinator{
		primary:  primary,
		fallback: fallback,
		tracer:   otel.Tracer("github.com/lattiq/mailgate/internal/delivery"),
		log:      log.WithComponent("delivery"),
	}
}

// Send delivers the envelope as a single all-or-nothing transport call.
// On a primary TransportError the fallback is attempted once; if it also
// fails the two errors are aggregated into a DeliveryFailedError. Errors
// that are not transport failures pass through untouched.
func (c *Coordinator) Send(ctx context.Context, env *core.Envelope) (*transport.Result, error) {
	ctx, span := c.tracer.Start(ctx, "mailgate.Coordinator.Send")
	defer span.End()

	span.SetAttributes(
		attribute.String("mail.from", env.From.Email),
		attribute.String("mail.subject", env.Subject),
		attribute.Int("mail.recipients", env.TotalRecipients()),
		attribute.String("mail.transport.primary", c.primary.Name()),
	)

	result, primaryErr := c.deliverWith(ctx, env, c.primary)
	if primaryErr == nil {
		span.SetAttributes(attribute.String("mail.transport.used", c.primary.Name()))
		span.SetStatus(codes.Ok, "delivered via primary")
		return result, nil
	}

	var te *core.TransportError
	if !errors.As(primaryErr, &te) {
		span.RecordError(primaryErr)
		span.SetStatus(codes.Error, "send failed")
		return nil, primaryErr
	}

	c.log.Warn().
		Err(primaryErr).
		Str("transport", c.primary.Name()).
		Str("from", env.From.Email).
		Msg("primary transport failed, attempting fallback")
	span.AddEvent("fallback", trace.WithAttributes(
		attribute.String("mail.transport.fallback", c.fallback.Name()),
	))

	result, fallbackErr := c.deliverWith(ctx, env, c.fallback)
	if fallbackErr == nil {
		metrics.FallbackDeliveries.Inc()
		span.SetAttributes(attribute.String("mail.transport.used", c.fallback.Name()))
		span.SetStatus(codes.Ok, "delivered via fallback")
		return result, nil
	}

	err := &core.DeliveryFailedError{Primary: primaryErr, Fallback: fallbackErr}
	c.log.Error().Err(err).Str("from", env.From.Email).Msg("all transports failed")
	span.RecordError(err)
	span.SetStatus(codes.Error, "all transports failed")
	return nil, err
}

// deliverWith runs one transport call and records its duration on the span.
func (c *Coordinator) deliverWith(ctx context.Context, env *core.Envelope, t transport.Transport) (*transport.Result, error) {
	start := time.Now()
	result, err := t.Deliver(ctx, env)
	elapsed := time.Since(start)

	metrics.DeliveryDuration.WithLabelValues(t.Name()).Observe(elapsed.Seconds())
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.Int64("mail.transport.duration_ms", elapsed.Milliseconds()),
		)
	}

	if err == nil {
		metrics.MailDelivered.WithLabelValues(t.Name()).Inc()
	}
	return result, err
}
