package chat

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/linechat/internal/admin"
	"github.com/vovakirdan/linechat/internal/auth"
	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/proto"
	"github.com/vovakirdan/linechat/internal/store/sqlite"
)

const (
	adminName     = "root"
	adminPassword = "rootpw"
)

type testEnv struct {
	registry  *core.Registry
	handler   *Handler
	store     *sqlite.SQLiteStore
	addr      string
	shutdowns atomic.Int32
}

// newTestEnv serves the handler on a loopback listener backed by an
// in-memory store with one admin account.
func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)

	authSvc := auth.NewService(st, &auth.JWTConfig{Secret: []byte("test"), Issuer: "test", TTL: time.Hour})
	_, err = authSvc.EnsureUser(context.Background(), adminName, adminPassword, true)
	require.NoError(t, err)

	registry := core.NewRegistry()
	broadcaster := core.NewBroadcaster(registry, nil, nil)
	processor := admin.NewProcessor(registry, broadcaster, st, nil, nil)

	env := &testEnv{registry: registry, store: st}
	env.handler = NewHandler(registry, broadcaster, processor, authSvc, opts, nil)
	env.handler.MessageLog = st
	env.handler.OnShutdown = func() { env.shutdowns.Add(1) }

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	env.addr = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go env.handler.Serve(ctx, conn, "tcp")
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = ln.Close()
		registry.Clear("")
		_ = st.Close()
	})
	return env
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (e *testEnv) dial(t *testing.T) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", e.addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// handshake answers the three prompts.
func (c *testClient) handshake(choice, username, password string) {
	c.t.Helper()

	c.expect(proto.PromptChoice)
	c.send(choice)
	c.expect(proto.PromptUsername)
	c.send(username)
	c.expect(proto.PromptPassword)
	c.send(password)
}

// join logs in and waits for the welcome line.
func (e *testEnv) join(t *testing.T, username, password string) *testClient {
	t.Helper()

	c := e.dial(t)
	c.handshake("L", username, password)
	c.expect(proto.ReplyWelcome)
	return c
}

// register creates the account and ends up admitted.
func (e *testEnv) register(t *testing.T, username, password string) *testClient {
	t.Helper()

	c := e.dial(t)
	c.handshake("R", username, password)
	c.expect(proto.ReplyRegistered)
	c.expect(proto.ReplyWelcome)
	return c
}

func (c *testClient) send(line string) {
	c.t.Helper()

	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func (c *testClient) sendRaw(data string) {
	c.t.Helper()

	_, err := io.WriteString(c.conn, data)
	require.NoError(c.t, err)
}

// expect reads exactly len(want) bytes and compares them.
func (c *testClient) expect(want string) {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, len(want))
	_, err := io.ReadFull(c.r, buf)
	require.NoError(c.t, err, "waiting for %q", want)
	require.Equal(c.t, want, string(buf))
}

func (c *testClient) expectLine(want string) {
	c.t.Helper()
	c.expect(want + "\n")
}

// expectSilence fails if anything arrives within d.
func (c *testClient) expectSilence(d time.Duration) {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	got, err := c.r.Peek(1)
	if err == nil {
		c.t.Fatalf("unexpected data %q", got)
	}
	var netErr net.Error
	require.True(c.t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

// expectClosed fails unless the server closes the connection with nothing
// left to read.
func (c *testClient) expectClosed() {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	rest, err := io.ReadAll(c.r)
	if err != nil {
		var netErr net.Error
		require.False(c.t, errors.As(err, &netErr) && netErr.Timeout(), "connection still open")
	}
	require.Empty(c.t, string(rest))
}
