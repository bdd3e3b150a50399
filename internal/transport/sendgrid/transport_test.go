package sendgrid

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/mailgate/internal/core"
	"github.com/lattiq/mailgate/internal/logger"
)

type fakeSender struct {
	resp *rest.Response
	err  error
	sent *mail.SGMailV3
}

func (f *fakeSender) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = email
	return f.resp, f.err
}

func testEnvelope() *core.Envelope {
	return &core.Envelope{
		From:    core.Address{Name: "Sender", Email: "sender@example.com"},
		To:      []core.Address{{Email: "to@example.com"}},
		CC:      []core.Address{{Name: "Copy", Email: "cc@example.com"}},
		Subject: "Greetings",
		Body:    "Hello there",
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("", logger.Nop())
	require.Error(t, err)
	var ve *core.ValidationError
	assert.ErrorAs(t, err, &ve)

	tr, err := New("SG.key", logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "sendgrid", tr.Name())
}

func TestDeliverSuccess(t *testing.T) {
	fake := &fakeSender{resp: &rest.Response{
		StatusCode: http.StatusAccepted,
		Headers:    map[string][]string{"X-Message-Id": {"abc123"}},
	}}
	tr := newWithSender(fake, logger.Nop())

	result, err := tr.Deliver(context.Background(), testEnvelope())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "abc123", result.MessageID)
	assert.Equal(t, "sendgrid", result.Transport)
}

func TestDeliverNetworkError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	tr := newWithSender(&fakeSender{err: cause}, logger.Nop())

	_, err := tr.Deliver(context.Background(), testEnvelope())
	require.Error(t, err)

	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "request_error", te.Code)
	assert.True(t, te.Temporary)
	assert.True(t, errors.Is(err, cause))
}

func TestDeliverAPIError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		temporary bool
	}{
		{"unauthorized", http.StatusUnauthorized, false},
		{"bad request", http.StatusBadRequest, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSender{resp: &rest.Response{StatusCode: tt.status, Body: "nope"}}
			tr := newWithSender(fake, logger.Nop())

			_, err := tr.Deliver(context.Background(), testEnvelope())
			require.Error(t, err)

			var te *core.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.status, te.StatusCode)
			assert.Equal(t, tt.temporary, te.Temporary)
		})
	}
}

func TestBuildMailShape(t *testing.T) {
	env := testEnvelope()
	env.BCC = []core.Address{{Email: "bcc@example.com"}}
	env.Attachments = []core.Attachment{{Filename: "a.pdf", Content: "aGVsbG8=", Type: "application/pdf"}}

	m := buildMail(env)

	assert.Equal(t, "sender@example.com", m.From.Address)
	assert.Equal(t, "Sender", m.From.Name)
	assert.Equal(t, "Greetings", m.Subject)

	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	require.Len(t, p.To, 1)
	assert.Equal(t, "to@example.com", p.To[0].Address)
	require.Len(t, p.CC, 1)
	assert.Equal(t, "cc@example.com", p.CC[0].Address)
	require.Len(t, p.BCC, 1)
	assert.Equal(t, "bcc@example.com", p.BCC[0].Address)

	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "Hello there", m.Content[0].Value)

	require.Len(t, m.Attachments, 1)
	att := m.Attachments[0]
	assert.Equal(t, "a.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.Type)
	assert.Equal(t, "aGVsbG8=", att.Content)
	assert.Equal(t, "attachment", att.Disposition)
}

func TestBuildMailHTMLContent(t *testing.T) {
	env := testEnvelope()
	env.Body = "<html><body>Hi</body></html>"

	m := buildMail(env)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/html", m.Content[0].Type)
}
