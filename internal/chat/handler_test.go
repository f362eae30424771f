package chat

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/linechat/internal/proto"
)

func TestChatScenario(t *testing.T) {
	env := newTestEnv(t, Options{})

	bob := env.register(t, "bob", "pw123")
	bob.send("/quit")
	bob.expect(proto.ReplyGoodbye)
	bob.expectClosed()

	bob = env.join(t, "bob", "pw123")
	carol := env.register(t, "carol", "secret")
	bob.expectLine("Server: carol joined the chat")

	root := env.join(t, adminName, adminPassword)
	bob.expectLine("Server: root joined the chat")
	carol.expectLine("Server: root joined the chat")

	bob.send("hello")
	carol.expectLine("bob: hello")
	root.expectLine("bob: hello")
	bob.expectSilence(100 * time.Millisecond)

	root.send("/admin mute bob")
	root.expectLine("Muted bob")

	bob.send("can you hear me")
	bob.expect(proto.ReplyMuted)
	carol.expectSilence(100 * time.Millisecond)
	root.expectSilence(10 * time.Millisecond)

	root.send("/admin list")
	root.expectLine("Online Users: bob, carol, root")

	require.Eventually(t, func() bool {
		msgs, err := env.store.ListMessages(context.Background(), 10)
		return err == nil && len(msgs) == 1 && msgs[0].Sender == "bob" && msgs[0].Body == "hello"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHandshakeRejections(t *testing.T) {
	env := newTestEnv(t, Options{})

	t.Run("invalid choice", func(t *testing.T) {
		c := env.dial(t)
		c.expect(proto.PromptChoice)
		c.send("X")
		c.expect(proto.ReplyInvalidChoice)
		c.expectClosed()
	})

	t.Run("choice is case-insensitive", func(t *testing.T) {
		c := env.dial(t)
		c.handshake("l", adminName, adminPassword)
		c.expect(proto.ReplyWelcome)
		c.send("/quit")
		c.expect(proto.ReplyGoodbye)
		c.expectClosed()
	})

	t.Run("bad credentials", func(t *testing.T) {
		c := env.dial(t)
		c.handshake("L", adminName, "wrong")
		c.expect(proto.ReplyInvalidCredentials)
		c.expectClosed()
	})

	t.Run("unknown user", func(t *testing.T) {
		c := env.dial(t)
		c.handshake("L", "nobody", "pw")
		c.expect(proto.ReplyInvalidCredentials)
		c.expectClosed()
	})

	t.Run("invalid username", func(t *testing.T) {
		c := env.dial(t)
		c.handshake("R", "a b", "pw")
		c.expect(proto.ReplyRegistrationFailed)
		c.expectClosed()
	})

	t.Run("duplicate registration", func(t *testing.T) {
		c := env.dial(t)
		c.handshake("R", adminName, "pw")
		c.expect(proto.ReplyRegistrationFailed)
		c.expectClosed()
	})
}

func TestBannedLoginRejected(t *testing.T) {
	env := newTestEnv(t, Options{})
	bob := env.register(t, "bob", "pw")
	bob.send("/quit")
	bob.expect(proto.ReplyGoodbye)
	bob.expectClosed()

	env.registry.Ban("bob", "")

	c := env.dial(t)
	c.handshake("L", "bob", "pw")
	c.expect(proto.ReplyBanned)
	c.expectClosed()
	assert.NotContains(t, env.registry.Online(), "bob")
}

func TestDuplicateLoginRejected(t *testing.T) {
	env := newTestEnv(t, Options{})
	first := env.register(t, "bob", "pw")

	second := env.dial(t)
	second.handshake("L", "bob", "pw")
	second.expect(proto.ReplyAlreadyOnline)
	second.expectClosed()

	first.send("/quit")
	first.expect(proto.ReplyGoodbye)
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	env := newTestEnv(t, Options{})
	bob := env.register(t, "bob", "pw")
	carol := env.register(t, "carol", "pw")
	bob.expectLine("Server: carol joined the chat")

	bob.send("/admin kick carol")
	bob.expect(proto.ReplyPermissionDenied)
	carol.expectSilence(100 * time.Millisecond)
	assert.Contains(t, env.registry.Online(), "carol")

	bob.send("/ADMIN list")
	bob.expect(proto.ReplyPermissionDenied)
}

func TestAdminPrefixMustBeWholeWord(t *testing.T) {
	env := newTestEnv(t, Options{})
	root := env.join(t, adminName, adminPassword)
	carol := env.register(t, "carol", "pw")
	root.expectLine("Server: carol joined the chat")

	root.send("/administrator says hi")
	carol.expectLine("root: /administrator says hi")

	root.send("/admin")
	root.expectLine("Invalid command format")

	root.send("/admin dance")
	root.expectLine("Unknown command")
}

func TestKickNotifiesOthers(t *testing.T) {
	env := newTestEnv(t, Options{})
	root := env.join(t, adminName, adminPassword)
	bob := env.register(t, "bob", "pw")
	root.expectLine("Server: bob joined the chat")

	root.send("/admin kick bob")
	root.expectLine("Kicked bob")
	bob.expect(proto.NoticeKicked)
	bob.expectClosed()
	root.expectLine("Server: bob left the chat")

	root.send("/admin kick bob")
	root.expectLine("User bob not found")
}

func TestBanDisconnectsAndBlocksReturn(t *testing.T) {
	env := newTestEnv(t, Options{})
	root := env.join(t, adminName, adminPassword)
	bob := env.register(t, "bob", "pw")
	root.expectLine("Server: bob joined the chat")

	root.send("/admin ban bob")
	root.expectLine("Banned bob")
	bob.expect(proto.NoticeBanned)
	bob.expectClosed()
	root.expectLine("Server: bob left the chat")

	again := env.dial(t)
	again.handshake("L", "bob", "pw")
	again.expect(proto.ReplyBanned)
	again.expectClosed()
}

func TestWarnReachesUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	root := env.join(t, adminName, adminPassword)
	bob := env.register(t, "bob", "pw")
	root.expectLine("Server: bob joined the chat")

	root.send("/admin warn bob mind the language")
	root.expectLine("Warned bob")
	bob.expectLine("WARNING: mind the language")

	root.send("/admin history bob")
	root.expectLine("- mind the language")
}

func TestAbruptDisconnect(t *testing.T) {
	env := newTestEnv(t, Options{})
	bob := env.register(t, "bob", "pw")
	carol := env.register(t, "carol", "pw")
	bob.expectLine("Server: carol joined the chat")

	require.NoError(t, bob.conn.Close())
	carol.expectLine("Server: bob left the chat")
	assert.Equal(t, []string{"carol"}, env.registry.Online())
}

func TestProbeKeepsSessionAlive(t *testing.T) {
	env := newTestEnv(t, Options{IdleTimeout: 300 * time.Millisecond})
	bob := env.register(t, "bob", "pw")
	carol := env.register(t, "carol", "pw")
	bob.expectLine("Server: carol joined the chat")

	for i := 0; i < 5; i++ {
		time.Sleep(100 * time.Millisecond)
		bob.sendRaw(string(proto.Probe))
		carol.sendRaw(string(proto.Probe))
	}
	bob.send("still here")
	carol.expectLine("bob: still here")
	bob.expectSilence(50 * time.Millisecond)

	// carol stops probing and is dropped for idleness while bob keeps probing.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_, _ = io.WriteString(bob.conn, string(proto.Probe))
			}
		}
	}()

	carol.expectClosed()
	bob.expectLine("Server: carol left the chat")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimit: 2, RateWindow: time.Minute})
	bob := env.register(t, "bob", "pw")
	carol := env.register(t, "carol", "pw")
	bob.expectLine("Server: carol joined the chat")

	bob.send("one")
	bob.send("two")
	bob.send("three")
	carol.expectLine("bob: one")
	carol.expectLine("bob: two")
	bob.expect(proto.ReplyRateLimited)
	carol.expectSilence(100 * time.Millisecond)
}

func TestLineTooLongClosesSession(t *testing.T) {
	env := newTestEnv(t, Options{MaxLineBytes: 64})
	bob := env.register(t, "bob", "pw")

	bob.send(strings.Repeat("x", 200))
	bob.expectClosed()
}

func TestShutdownFromAdminSession(t *testing.T) {
	env := newTestEnv(t, Options{})
	root := env.join(t, adminName, adminPassword)
	bob := env.register(t, "bob", "pw")
	root.expectLine("Server: bob joined the chat")

	root.send("/admin shutdown")
	bob.expect(proto.NoticeShutdown)
	bob.expectClosed()
	root.expect(proto.NoticeShutdown)
	root.expectClosed()

	require.Eventually(t, func() bool { return env.shutdowns.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, env.registry.Count())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "awaiting_choice", stateAwaitingChoice.String())
	assert.Equal(t, "closed", stateClosed.String())
	assert.Equal(t, "unknown", state(42).String())
}
