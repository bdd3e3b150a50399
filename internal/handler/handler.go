// Package handler implements the HTTP API of the gateway.
package handler

import (
	"errors"
	"net/http"

	"github.com/lattiq/mailgate/internal/core"
	"github.com/lattiq/mailgate/internal/delivery"
	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/queue"
	"github.com/lattiq/mailgate/internal/version"
)

// Handler holds all HTTP handlers.
type Handler struct {
	coordinator *delivery.Coordinator
	broker      queue.Broker
	sendQueue   string
	maxAttempts int
	log         *logger.Logger
}

// New creates a new Handler instance.
func New(coordinator *delivery.Coordinator, broker queue.Broker, sendQueue string, maxAttempts int, log *logger.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		broker:      broker,
		sendQueue:   sendQueue,
		maxAttempts: maxAttempts,
		log:         log.WithComponent("http"),
	}
}

// SendMail accepts a send request and enqueues it for asynchronous
// delivery. With ?sync=true the delivery happens inline and the caller
// sees the transport outcome directly.
func (h *Handler) SendMail(w http.ResponseWriter, r *http.Request) {
	var req sendMailRequest
	if err := readJSON(r, &req); err != nil {
		if errors.Is(err, ErrEmptyBody) {
			writeError(w, http.StatusBadRequest, "missing_body", "Request body is required")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "invalid_body", "Request body is not valid JSON")
		return
	}

	env := req.envelope()
	if err := env.Validate(); err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusUnprocessableEntity, "validation_error", ve.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	if r.URL.Query().Get("sync") == "true" {
		h.sendSync(w, r, env)
		return
	}

	t, err := queue.NewTask(queue.TaskSendMail, h.sendQueue, env, h.maxAttempts)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to build send task")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to queue mail")
		return
	}
	if err := h.broker.Enqueue(r.Context(), t); err != nil {
		h.log.Error().Err(err).Str("task_id", t.ID).Msg("failed to enqueue send task")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to queue mail")
		return
	}

	h.log.Info().
		Str("task_id", t.ID).
		Str("from", env.From.Email).
		Int("recipients", env.TotalRecipients()).
		Msg("mail queued for delivery")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "mail queued for delivery",
		"task_id": t.ID,
	})
}

// sendSync delivers inline, bypassing the queue. Failures are surfaced to
// the caller rather than retried.
func (h *Handler) sendSync(w http.ResponseWriter, r *http.Request, env *core.Envelope) {
	result, err := h.coordinator.Send(r.Context(), env)
	if err != nil {
		h.log.Error().Err(err).Str("from", env.From.Email).Msg("synchronous send failed")
		writeError(w, http.StatusInternalServerError, "delivery_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the broker connection is usable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.broker.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "broker not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Version reports build metadata.
func (h *Handler) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}
