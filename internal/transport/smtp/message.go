package smtp

import (
	"fmt"
	"strings"
	"time"

	"github.com/lattiq/mailgate/internal/core"
)

// buildMessage renders the envelope as an RFC 5322 message. Bodies become a
// single text/plain or text/html part; attachments turn the message into
// multipart/mixed with base64 parts carrying a Content-Disposition filename.
func buildMessage(env *core.Envelope) []byte {
	var msg strings.Builder

	msg.WriteString("From: " + env.From.String() + "\r\n")
	msg.WriteString("To: " + joinAddresses(env.To) + "\r\n")
	if len(env.CC) > 0 {
		msg.WriteString("Cc: " + joinAddresses(env.CC) + "\r\n")
	}
	if len(env.BCC) > 0 {
		msg.WriteString("Bcc: " + joinAddresses(env.BCC) + "\r\n")
	}
	msg.WriteString("Subject: " + env.Subject + "\r\n")
	msg.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")

	if !env.HasAttachments() {
		msg.WriteString("Content-Type: " + env.ContentType() + "; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(env.Body + "\r\n")
		return []byte(msg.String())
	}

	boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())
	msg.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + "\r\n")
	msg.WriteString("\r\n")

	// Body part.
	msg.WriteString("--" + boundary + "\r\n")
	msg.WriteString("Content-Type: " + env.ContentType() + "; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(env.Body + "\r\n")

	// Attachment parts. Content is already base64; re-wrap it to 76-column
	// lines for transfer.
	for _, att := range env.Attachments {
		msg.WriteString("--" + boundary + "\r\n")
		msg.WriteString("Content-Type: " + att.ContentType() + "; name=\"" + att.Filename + "\"\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("Content-Disposition: attachment; filename=\"" + att.Filename + "\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(wrapBase64(att.Content) + "\r\n")
	}

	msg.WriteString("--" + boundary + "--\r\n")
	return []byte(msg.String())
}

func joinAddresses(addrs []core.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// wrapBase64 breaks a base64 string into 76-character lines per RFC 2045.
func wrapBase64(s string) string {
	const lineLen = 76
	if len(s) <= lineLen {
		return s
	}
	var b strings.Builder
	for len(s) > lineLen {
		b.WriteString(s[:lineLen])
		b.WriteString("\r\n")
		s = s[lineLen:]
	}
	b.WriteString(s)
	return b.String()
}
