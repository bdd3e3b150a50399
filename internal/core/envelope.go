// Package core defines the envelope value objects and typed errors shared
// by the transports, the delivery coordinator, and the worker pipeline.
package core

import (
	"mime"
	"net/mail"
	"strconv"
	"strings"
)

// Address represents an email address with optional display name.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String returns the formatted email address.
// If Name is provided, returns "Name <email@domain.com>",
// otherwise just "email@domain.com".
func (a Address) String() string {
	if a.Name != "" {
		return mime.QEncoding.Encode("UTF-8", a.Name) + " <" + a.Email + ">"
	}
	return a.Email
}

// Valid checks if the address has a valid email format.
func (a Address) Valid() bool {
	if a.Email == "" {
		return false
	}
	_, err := mail.ParseAddress(a.String())
	return err == nil
}

// Attachment is one file attached to an envelope. Content carries the
// base64-encoded payload exactly as received at the API boundary; transports
// pass it through without re-encoding.
type Attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Type     string `json:"type,omitempty"`
}

// ContentType returns the attachment MIME type, defaulting to
// application/octet-stream when none was supplied.
func (a Attachment) ContentType() string {
	if a.Type != "" {
		return a.Type
	}
	return "application/octet-stream"
}

// Envelope is the immutable representation of one send request. It is
// created once at the API boundary, validated, and then serialized onto the
// queue; workers reconstruct transport payloads from it on every attempt.
type Envelope struct {
	From        Address      `json:"from"`
	To          []Address    `json:"to"`
	CC          []Address    `json:"cc,omitempty"`
	BCC         []Address    `json:"bcc,omitempty"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Validate checks the envelope structure and required fields. An envelope
// that fails validation must never reach the queue.
//
// CC and BCC are optional, but a list that is present and empty is rejected:
// an explicit empty list in the request is treated as a malformed payload
// rather than silently ignored.
func (e *Envelope) Validate() error {
	if !e.From.Valid() {
		return &ValidationError{Field: "from", Message: "invalid or missing sender address"}
	}

	if len(e.To) == 0 {
		return &ValidationError{Field: "to", Message: "at least one recipient required"}
	}

	for i, to := range e.To {
		if !to.Valid() {
			return &ValidationError{
				Field:   "to",
				Message: "invalid recipient address at index " + strconv.Itoa(i),
			}
		}
	}

	if e.CC != nil && len(e.CC) == 0 {
		return &ValidationError{Field: "cc", Message: "cc must not be an empty list"}
	}
	for i, cc := range e.CC {
		if !cc.Valid() {
			return &ValidationError{
				Field:   "cc",
				Message: "invalid CC address at index " + strconv.Itoa(i),
			}
		}
	}

	if e.BCC != nil && len(e.BCC) == 0 {
		return &ValidationError{Field: "bcc", Message: "bcc must not be an empty list"}
	}
	for i, bcc := range e.BCC {
		if !bcc.Valid() {
			return &ValidationError{
				Field:   "bcc",
				Message: "invalid BCC address at index " + strconv.Itoa(i),
			}
		}
	}

	if strings.TrimSpace(e.Subject) == "" {
		return &ValidationError{Field: "subject", Message: "subject is required"}
	}

	if strings.TrimSpace(e.Body) == "" {
		return &ValidationError{Field: "body", Message: "body is required"}
	}

	for i, att := range e.Attachments {
		if att.Filename == "" {
			return &ValidationError{
				Field:   "attachments",
				Message: "missing filename at index " + strconv.Itoa(i),
			}
		}
		if att.Content == "" {
			return &ValidationError{
				Field:   "attachments",
				Message: "missing content at index " + strconv.Itoa(i),
			}
		}
	}

	return nil
}

// IsHTML reports whether the body should be delivered as HTML. The content
// type is inferred from the presence of markup rather than declared by the
// caller.
func (e *Envelope) IsHTML() bool {
	return strings.Contains(strings.ToLower(e.Body), "<html")
}

// ContentType returns the MIME type of the body part.
func (e *Envelope) ContentType() string {
	if e.IsHTML() {
		return "text/html"
	}
	return "text/plain"
}

// HasAttachments returns true if the envelope carries any attachments.
func (e *Envelope) HasAttachments() bool {
	return len(e.Attachments) > 0
}

// TotalRecipients returns the total number of recipients (To + CC + BCC).
func (e *Envelope) TotalRecipients() int {
	return len(e.To) + len(e.CC) + len(e.BCC)
}

// AllRecipients returns all recipients combined into a single slice,
// preserving To, CC, BCC order.
func (e *Envelope) AllRecipients() []Address {
	all := make([]Address, 0, e.TotalRecipients())
	all = append(all, e.To...)
	all = append(all, e.CC...)
	all = append(all, e.BCC...)
	return all
}
