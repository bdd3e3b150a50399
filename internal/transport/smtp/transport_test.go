package smtp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/mailgate/internal/core"
	"github.com/lattiq/mailgate/internal/logger"
)

// fakeRelay is a minimal scripted SMTP server. It accepts plaintext
// sessions, records delivered messages, and can be told to stay silent
// after accepting or to drop the session after a message.
type fakeRelay struct {
	ln net.Listener

	silent    bool
	dropAfter bool

	mu       sync.Mutex
	conns    int
	messages []string
}

// startRelay listens and serves in the background. Behavior flags are set
// before the accept loop starts so the serving goroutine reads them safely.
func startRelay(t *testing.T, configure ...func(*fakeRelay)) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &fakeRelay{ln: ln}
	for _, fn := range configure {
		fn(r)
	}
	go r.serve()
	t.Cleanup(func() { ln.Close() })
	return r
}

func silentRelay(r *fakeRelay)   { r.silent = true }
func dropAfterData(r *fakeRelay) { r.dropAfter = true }

func (r *fakeRelay) port() int {
	return r.ln.Addr().(*net.TCPAddr).Port
}

func (r *fakeRelay) connCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns
}

func (r *fakeRelay) delivered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *fakeRelay) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		r.mu.Lock()
		r.conns++
		r.mu.Unlock()

		if r.silent {
			// Keep the connection open and never speak.
			continue
		}
		go r.session(conn)
	}
}

func (r *fakeRelay) session(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)

	fmt.Fprintf(conn, "220 fake ESMTP\r\n")
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			fmt.Fprintf(conn, "250-fake greets you\r\n250 OK\r\n")
		case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"), strings.HasPrefix(cmd, "NOOP"), strings.HasPrefix(cmd, "RSET"):
			fmt.Fprintf(conn, "250 OK\r\n")
		case strings.HasPrefix(cmd, "DATA"):
			fmt.Fprintf(conn, "354 go ahead\r\n")
			var b strings.Builder
			for {
				l, err := br.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			r.mu.Lock()
			r.messages = append(r.messages, b.String())
			r.mu.Unlock()
			fmt.Fprintf(conn, "250 accepted\r\n")
			if r.dropAfter {
				// Simulates a relay that times the session out between
				// deliveries; the client only notices on its next command.
				return
			}
		case strings.HasPrefix(cmd, "QUIT"):
			fmt.Fprintf(conn, "221 bye\r\n")
			return
		default:
			fmt.Fprintf(conn, "250 OK\r\n")
		}
	}
}

func relayTransport(t *testing.T, r *fakeRelay, timeout time.Duration) *Transport {
	t.Helper()
	tr, err := New(Config{
		Host:    "127.0.0.1",
		Port:    r.port(),
		Timeout: timeout,
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestDeliverConnectsLazilyAndReuses(t *testing.T) {
	relay := startRelay(t)
	tr := relayTransport(t, relay, 2*time.Second)

	// No connection before the first delivery.
	assert.Equal(t, 0, relay.connCount())

	env := testEnvelope()
	for i := 0; i < 2; i++ {
		result, err := tr.Deliver(context.Background(), env)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "smtp", result.Transport)
	}

	assert.Equal(t, 1, relay.connCount(), "the connection must be reused across deliveries")

	messages := relay.delivered()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0], "From: Sender <sender@example.com>")
	assert.Contains(t, messages[0], "Subject: Greetings")
}

func TestDeliverReconnectsAfterConnectionDrop(t *testing.T) {
	relay := startRelay(t, dropAfterData)
	tr := relayTransport(t, relay, 2*time.Second)

	env := testEnvelope()
	_, err := tr.Deliver(context.Background(), env)
	require.NoError(t, err)

	// The relay dropped the session after the first message; the probe
	// must notice and the second delivery must reconnect.
	_, err = tr.Deliver(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, 2, relay.connCount())
	assert.Len(t, relay.delivered(), 2)
}

func TestDeliverBoundedBySilentRelay(t *testing.T) {
	relay := startRelay(t, silentRelay)
	tr := relayTransport(t, relay, 300*time.Millisecond)

	start := time.Now()
	_, err := tr.Deliver(context.Background(), testEnvelope())
	elapsed := time.Since(start)

	require.Error(t, err)
	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "connect_error", te.Code)
	assert.True(t, te.Temporary)
	assert.Less(t, elapsed, 2*time.Second,
		"a relay that accepts but never greets must fail within the transport timeout")
}

func TestDeliverBoundedByContextDeadline(t *testing.T) {
	relay := startRelay(t, silentRelay)
	tr := relayTransport(t, relay, 30*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tr.Deliver(ctx, testEnvelope())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, core.IsTemporary(err))
	assert.Less(t, elapsed, 2*time.Second,
		"a context deadline shorter than the transport timeout must win")
}

func TestDeliverCancelledContext(t *testing.T) {
	relay := startRelay(t)
	tr := relayTransport(t, relay, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Deliver(ctx, testEnvelope())
	require.Error(t, err)
	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "cancelled", te.Code)
	assert.Equal(t, 0, relay.connCount(), "a cancelled delivery must not dial")
}
