package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/lattiq/mailgate/internal/core"
)

// ErrEmptyBody reports a request with no body at all, which gets a
// different status than a malformed one.
var ErrEmptyBody = errors.New("handler: empty request body")

// sendMailRequest is the wire shape of a send request. Recipient lists
// keep the absent-versus-empty distinction: a missing list is fine, an
// explicitly empty one is rejected by envelope validation.
type sendMailRequest struct {
	From        core.Address      `json:"from"`
	To          []core.Address    `json:"to"`
	CC          []core.Address    `json:"cc,omitempty"`
	BCC         []core.Address    `json:"bcc,omitempty"`
	Subject     string            `json:"subject"`
	Message     string            `json:"message"`
	Attachments []core.Attachment `json:"attachments,omitempty"`
}

// envelope converts the request into the pipeline's envelope.
func (r sendMailRequest) envelope() *core.Envelope {
	return &core.Envelope{
		From:        r.From,
		To:          r.To,
		CC:          r.CC,
		BCC:         r.BCC,
		Subject:     r.Subject,
		Body:        r.Message,
		Attachments: r.Attachments,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

// readJSON decodes the request body into v, distinguishing an empty body
// from a malformed one.
func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return ErrEmptyBody
	}
	return json.Unmarshal(raw, v)
}
