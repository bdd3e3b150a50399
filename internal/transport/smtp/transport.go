// Package smtp implements the primary mail transport: a persistent
// connection to a configured relay, reused across deliveries and lazily
// reconnected when the server drops it.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"github.com/lattiq/mailgate/internal/core"
	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/transport"
)

const transportName = "smtp"

// Config holds the relay connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// StartTLS upgrades the connection after EHLO. SSL dials with implicit
	// TLS instead. At most one of the two should be set.
	StartTLS bool
	SSL      bool

	// Timeout bounds the dial and each delivery on the wire.
	Timeout time.Duration
}

// Transport implements transport.Transport over a shared SMTP connection.
// The connection is single-owner: a mutex scopes it to one delivery at a
// time, so concurrent workers serialize on it rather than interleave
// protocol commands.
type Transport struct {
	cfg Config
	log *logger.Logger

	mu     sync.Mutex
	conn   net.Conn
	client *smtp.Client
}

// New creates an SMTP transport. The connection is established lazily on
// the first delivery.
func New(cfg Config, log *logger.Logger) (*Transport, error) {
	if cfg.Host == "" {
		return nil, &core.ValidationError{Field: "smtp.host", Message: "SMTP host is required"}
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, &core.ValidationError{Field: "smtp.port", Message: "invalid port number: " + strconv.Itoa(cfg.Port)}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Transport{
		cfg: cfg,
		log: log.WithComponent("transport.smtp"),
	}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return transportName
}

// Deliver submits the envelope through the relay. A single failed
// submission returns a TransportError immediately; retry policy lives in
// the worker, not here.
func (t *Transport) Deliver(ctx context.Context, env *core.Envelope) (*transport.Result, error) {
	msg := buildMessage(env)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, core.NewTemporaryTransportError(transportName, "cancelled", "delivery cancelled", err)
	}

	// Bound the whole SMTP exchange, handshake and probe included; a stuck
	// relay must not block the worker pool indefinitely.
	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := t.ensureConnected(deadline); err != nil {
		return nil, core.NewTemporaryTransportError(transportName, "connect_error",
			"failed to connect to "+t.addr(), err)
	}

	_ = t.conn.SetDeadline(deadline)
	defer func() {
		if t.conn != nil {
			_ = t.conn.SetDeadline(time.Time{})
		}
	}()

	if err := t.submit(env, msg); err != nil {
		// The session state is unknown after a failed exchange; drop the
		// connection so the next delivery starts clean.
		t.teardown()
		return nil, core.NewTemporaryTransportError(transportName, "send_error",
			"failed to send email: "+err.Error(), err)
	}

	return &transport.Result{
		Success:   true,
		Message:   fmt.Sprintf("message from %s delivered to %d recipients", env.From.Email, env.TotalRecipients()),
		MessageID: fmt.Sprintf("%d@%s", time.Now().UnixNano(), t.cfg.Host),
		Transport: transportName,
	}, nil
}

// Close quits the relay session if one is open.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	err := t.client.Quit()
	t.client = nil
	t.conn = nil
	return err
}

// ensureConnected verifies the cached connection with a NOOP probe and
// reconnects when the probe fails. The deadline bounds the probe and, on
// reconnect, the entire handshake.
func (t *Transport) ensureConnected(deadline time.Time) error {
	if t.client != nil {
		_ = t.conn.SetDeadline(deadline)
		if err := t.client.Noop(); err == nil {
			return nil
		}
		t.log.Warn().Str("host", t.cfg.Host).Msg("SMTP connection is stale, reconnecting")
		t.teardown()
	}
	return t.connect(deadline)
}

func (t *Transport) connect(deadline time.Time) error {
	addr := t.addr()
	dialer := &net.Dialer{Deadline: deadline}

	var (
		conn net.Conn
		err  error
	)
	if t.cfg.SSL {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, t.tlsConfig())
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return err
	}

	// A relay that accepts the connection but never sends its greeting must
	// still fail within the deadline, so the wire is bounded before the
	// first read.
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}

	if t.cfg.StartTLS && !t.cfg.SSL {
		if err = client.StartTLS(t.tlsConfig()); err != nil {
			_ = client.Close()
			return err
		}
	}

	if t.cfg.Username != "" && t.cfg.Password != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err = client.Auth(auth); err != nil {
			_ = client.Close()
			return err
		}
	}

	t.log.Info().Str("host", t.cfg.Host).Int("port", t.cfg.Port).Msg("connected to SMTP relay")
	t.conn = conn
	t.client = client
	return nil
}

// submit runs the MAIL/RCPT/DATA exchange for one envelope.
func (t *Transport) submit(env *core.Envelope, msg []byte) error {
	if err := t.client.Mail(env.From.Email); err != nil {
		return err
	}
	for _, rcpt := range env.AllRecipients() {
		if err := t.client.Rcpt(rcpt.Email); err != nil {
			return err
		}
	}
	w, err := t.client.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (t *Transport) teardown() {
	if t.client != nil {
		_ = t.client.Close()
	}
	t.client = nil
	t.conn = nil
}

func (t *Transport) addr() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

func (t *Transport) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName: t.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
}
