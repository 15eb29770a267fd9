package chat

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/roomchat/internal/frame"
)

const readTimeout = 2 * time.Second

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard
	return logger
}

// peer is the remote end of a client connection as seen by a test. The
// protocol has no delimiters, so frames that arrive together are matched
// against expectations as a prefix of everything read so far.
type peer struct {
	t       *testing.T
	conn    net.Conn
	pending string
}

func newPeer(t *testing.T, conn net.Conn) *peer {
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn}
}

// tcpPair returns the accepted side of a loopback TCP connection and a peer
// wrapping the dialing side.
func tcpPair(t *testing.T) (net.Conn, *peer) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	dialed, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	accepted, err := listener.Accept()
	if err != nil {
		t.Fatalf("failed to accept: %v", err)
	}
	t.Cleanup(func() { accepted.Close() })

	return accepted, newPeer(t, dialed)
}

func (p *peer) send(text string) {
	p.t.Helper()
	if err := frame.Write(p.conn, text); err != nil {
		p.t.Fatalf("failed to send %q: %v", text, err)
	}
}

func (p *peer) sendBytes(b []byte) {
	p.t.Helper()
	if _, err := p.conn.Write(b); err != nil {
		p.t.Fatalf("failed to send %v: %v", b, err)
	}
}

func (p *peer) expect(want string) {
	p.t.Helper()
	_ = p.conn.SetReadDeadline(time.Now().Add(readTimeout))

	buf := make([]byte, frame.Size)
	for len(p.pending) < len(want) {
		n, err := p.conn.Read(buf)
		p.pending += string(buf[:n])
		if err != nil && len(p.pending) < len(want) {
			p.t.Fatalf("waiting for %q, got %q: %v", want, p.pending, err)
		}
	}

	if !strings.HasPrefix(p.pending, want) {
		p.t.Fatalf("expected %q, got %q", want, p.pending)
	}
	p.pending = p.pending[len(want):]
}

// roundTrip sends text and waits for the expected reply.
func (p *peer) roundTrip(text, want string) {
	p.t.Helper()
	p.send(text)
	p.expect(want)
}

func (p *peer) expectSilence() {
	p.t.Helper()
	if p.pending != "" {
		p.t.Fatalf("unexpected data: %q", p.pending)
	}
	_ = p.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

	buf := make([]byte, frame.Size)
	n, err := p.conn.Read(buf)
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		p.t.Fatalf("expected no data, got %q (err: %v)", buf[:n], err)
	}
}

func (p *peer) expectClosed() {
	p.t.Helper()
	_ = p.conn.SetReadDeadline(time.Now().Add(readTimeout))

	buf := make([]byte, frame.Size)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			p.t.Fatalf("expected the connection to close, got %q", buf[:n])
		}
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			p.t.Fatalf("timed out waiting for the connection to close")
		}
		return
	}
}

// eventually polls cond until it holds or the read timeout passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
