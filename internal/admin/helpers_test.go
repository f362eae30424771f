package admin

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/linechat/internal/core"
)

type peer struct {
	lines chan string
}

func join(t *testing.T, r *core.Registry, identity string) *peer {
	t.Helper()

	server, client := net.Pipe()
	s := core.NewSession("sid-"+identity, identity, server, false, core.SessionOptions{})
	require.NoError(t, r.Add(s))

	p := &peer{lines: make(chan string, 64)}
	go func() {
		defer close(p.lines)
		br := bufio.NewReader(client)
		for {
			line, err := br.ReadString('\n')
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
	return p
}

func (p *peer) next(t *testing.T) string {
	t.Helper()

	select {
	case line, ok := <-p.lines:
		require.True(t, ok, "connection closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("no line received")
		return ""
	}
}

func (p *peer) closed(t *testing.T) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-p.lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("connection still open")
		}
	}
}
