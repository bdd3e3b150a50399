// Package transport defines the delivery capability implemented by the SMTP
// and SendGrid variants. Transports are stateless with respect to the
// envelope: attempt counting and failover belong to the layers above.
package transport

import (
	"context"

	"github.com/lattiq/mailgate/internal/core"
)

// Transport delivers an envelope through one concrete mechanism.
// Implementations return *core.TransportError on every delivery failure so
// callers can distinguish retryable conditions from broken input.
type Transport interface {
	// Deliver performs a single delivery attempt. It must not retry
	// internally.
	Deliver(ctx context.Context, env *core.Envelope) (*Result, error)

	// Name returns the transport's name for identification and logging.
	Name() string
}

// Result is the outcome of one successful transport call.
type Result struct {
	// Success is true for any returned Result; failures are errors.
	Success bool `json:"success"`

	// Message is a human-readable delivery summary.
	Message string `json:"message"`

	// MessageID is the identifier assigned by the transport, when one
	// exists.
	MessageID string `json:"message_id,omitempty"`

	// Transport is the name of the transport that delivered the envelope.
	Transport string `json:"transport"`
}
