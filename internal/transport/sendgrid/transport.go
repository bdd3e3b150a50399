// Package sendgrid implements the fallback mail transport over the SendGrid
// v3 API. It performs a single synchronous POST per delivery; a non-2xx
// response or network failure becomes a TransportError carrying the status.
package sendgrid

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/lattiq/mailgate/internal/core"
	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/transport"
)

const transportName = "sendgrid"

// sender is the slice of the SendGrid client the transport needs; tests
// substitute a fake.
type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Transport implements transport.Transport over the SendGrid API.
type Transport struct {
	client sender
	log    *logger.Logger
}

// New creates a SendGrid transport authenticated with the given API key.
func New(apiKey string, log *logger.Logger) (*Transport, error) {
	if apiKey == "" {
		return nil, &core.ValidationError{Field: "sendgrid.api_key", Message: "SendGrid API key is required"}
	}
	return &Transport{
		client: sg.NewSendClient(apiKey),
		log:    log.WithComponent("transport.sendgrid"),
	}, nil
}

// newWithSender is used by tests to inject a fake client.
func newWithSender(client sender, log *logger.Logger) *Transport {
	return &Transport{client: client, log: log.WithComponent("transport.sendgrid")}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return transportName
}

// Deliver posts the envelope to the SendGrid mail send endpoint.
func (t *Transport) Deliver(ctx context.Context, env *core.Envelope) (*transport.Result, error) {
	resp, err := t.client.SendWithContext(ctx, buildMail(env))
	if err != nil {
		return nil, core.NewTemporaryTransportError(transportName, "request_error",
			"failed to send email: "+err.Error(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.TransportError{
			Transport:  transportName,
			Code:       "api_error",
			Message:    "SendGrid API error: " + resp.Body,
			StatusCode: resp.StatusCode,
			Temporary:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	messageID := ""
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}

	return &transport.Result{
		Success:   true,
		Message:   fmt.Sprintf("message from %s delivered to %d recipients", env.From.Email, env.TotalRecipients()),
		MessageID: messageID,
		Transport: transportName,
	}, nil
}

// buildMail converts the envelope into the provider payload: recipients
// tagged by role in one personalization, content keyed by MIME type, and
// attachments passed through base64-encoded.
func buildMail(env *core.Envelope) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(env.From.Name, env.From.Email))
	m.Subject = env.Subject

	p := mail.NewPersonalization()
	for _, to := range env.To {
		p.AddTos(mail.NewEmail(to.Name, to.Email))
	}
	for _, cc := range env.CC {
		p.AddCCs(mail.NewEmail(cc.Name, cc.Email))
	}
	for _, bcc := range env.BCC {
		p.AddBCCs(mail.NewEmail(bcc.Name, bcc.Email))
	}
	m.AddPersonalizations(p)

	m.AddContent(mail.NewContent(env.ContentType(), env.Body))

	for _, att := range env.Attachments {
		a := mail.NewAttachment()
		a.SetFilename(att.Filename)
		a.SetType(att.ContentType())
		a.SetContent(att.Content)
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}

	return m
}
