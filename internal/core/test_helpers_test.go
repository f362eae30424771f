package core

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"
)

// peer is the client side of a session's connection.
type peer struct {
	conn  net.Conn
	lines chan string
}

func newTestSession(t *testing.T, identity string, opts SessionOptions) (*Session, *peer) {
	t.Helper()

	server, client := net.Pipe()
	s := NewSession("sid-"+identity, identity, server, false, opts)
	p := &peer{conn: client, lines: make(chan string, 128)}

	go func() {
		defer close(p.lines)
		r := bufio.NewReader(client)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			p.lines <- strings.TrimSuffix(line, "\n")
		}
	}()

	t.Cleanup(func() {
		s.Abort()
		_ = client.Close()
	})
	return s, p
}

// newStalledSession returns a session whose peer never reads.
func newStalledSession(t *testing.T, identity string, opts SessionOptions) (*Session, net.Conn) {
	t.Helper()

	server, client := net.Pipe()
	s := NewSession("sid-"+identity, identity, server, false, opts)
	t.Cleanup(func() {
		s.Abort()
		_ = client.Close()
	})
	return s, client
}

func mustLine(t *testing.T, p *peer, want string) {
	t.Helper()

	select {
	case got, ok := <-p.lines:
		if !ok {
			t.Fatalf("connection closed, expected %q", want)
		}
		if got != want {
			t.Fatalf("expected line %q, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected line %q not received", want)
	}
}

func noLine(t *testing.T, p *peer, within time.Duration) {
	t.Helper()

	select {
	case got, ok := <-p.lines:
		if ok {
			t.Fatalf("unexpected line %q", got)
		}
	case <-time.After(within):
	}
}

func mustClosed(t *testing.T, p *peer) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-p.lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("expected connection to be closed")
		}
	}
}
