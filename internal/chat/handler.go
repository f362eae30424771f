package chat

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/admin"
	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/metrics"
	"github.com/vovakirdan/linechat/internal/proto"
	"github.com/vovakirdan/linechat/internal/store"
	"github.com/vovakirdan/linechat/internal/utils"
)

const (
	defaultIdleTimeout  = 90 * time.Second
	defaultMaxLineBytes = 4096
	defaultWriteTimeout = 10 * time.Second
)

// Options tunes per-connection behaviour.
type Options struct {
	// IdleTimeout closes a connection that sends nothing, probes included, for this long.
	IdleTimeout time.Duration
	// MaxLineBytes bounds a single input line.
	MaxLineBytes int
	// RateLimit is the number of chat lines allowed per RateWindow. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
	Session    core.SessionOptions
}

// Handler serves the line protocol on accepted connections.
type Handler struct {
	registry    *core.Registry
	broadcaster *core.Broadcaster
	processor   *admin.Processor
	gate        Gate
	opts        Options
	log         *zerolog.Logger

	// MessageLog, when set, receives every published chat line.
	MessageLog store.MessageStore
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// OnShutdown is called after an admin session ran the shutdown command.
	OnShutdown func()
}

// NewHandler builds a connection handler.
func NewHandler(
	registry *core.Registry,
	broadcaster *core.Broadcaster,
	processor *admin.Processor,
	gate Gate,
	opts Options,
	logger *zerolog.Logger,
) *Handler {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = defaultMaxLineBytes
	}
	if opts.Session.WriteTimeout <= 0 {
		opts.Session.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Handler{
		registry:    registry,
		broadcaster: broadcaster,
		processor:   processor,
		gate:        gate,
		opts:        opts,
		log:         logger,
	}
}

// client is the per-connection state carried between protocol steps.
type client struct {
	conn     net.Conn
	reader   *lineReader
	limiter  *rateLimiter
	log      zerolog.Logger
	choice   string
	username string
	password string
	session  *core.Session
}

// Serve runs the protocol on conn until it reaches the closed state.
// conn is closed before Serve returns.
func (h *Handler) Serve(ctx context.Context, conn net.Conn, transport string) {
	defer conn.Close()
	h.Metrics.ConnectionAccepted(transport)

	c := &client{
		conn:    conn,
		reader:  newLineReader(conn, h.opts.MaxLineBytes, h.opts.IdleTimeout),
		limiter: newRateLimiter(h.opts.RateLimit, h.opts.RateWindow),
		log:     h.log.With().Str("remote", remoteAddr(conn)).Str("transport", transport).Logger(),
	}
	c.log.Debug().Msg("connection accepted")

	for st := stateAwaitingChoice; st != stateClosed; {
		next := h.step(ctx, c, st)
		if next != st {
			c.log.Trace().Stringer("from", st).Stringer("to", next).Msg("state transition")
		}
		st = next
	}
	h.teardown(c)
}

func (h *Handler) step(ctx context.Context, c *client, st state) state {
	switch st {
	case stateAwaitingChoice:
		line, ok := h.prompt(c, proto.PromptChoice)
		if !ok {
			return stateClosed
		}
		c.choice = strings.ToUpper(strings.TrimSpace(line))
		if c.choice != proto.ChoiceLogin && c.choice != proto.ChoiceRegister {
			h.Metrics.AuthFailed("invalid_choice")
			h.write(c, proto.ReplyInvalidChoice)
			return stateClosed
		}
		return stateAwaitingUsername

	case stateAwaitingUsername:
		line, ok := h.prompt(c, proto.PromptUsername)
		if !ok {
			return stateClosed
		}
		c.username = strings.TrimSpace(line)
		return stateAwaitingPassword

	case stateAwaitingPassword:
		line, ok := h.prompt(c, proto.PromptPassword)
		if !ok {
			return stateClosed
		}
		c.password = strings.TrimSpace(line)
		return stateAuthenticating

	case stateAuthenticating:
		return h.authenticate(ctx, c)

	case stateAuthenticated:
		return h.serveLine(ctx, c)

	default:
		return stateClosed
	}
}

// prompt writes a handshake prompt and reads the answer.
func (h *Handler) prompt(c *client, text string) (string, bool) {
	if !h.write(c, text) {
		return "", false
	}
	line, err := c.reader.next()
	if err != nil {
		h.logReadError(c, err)
		return "", false
	}
	return line, true
}

// write sends handshake text straight to the connection. After admission
// every write goes through the session instead.
func (h *Handler) write(c *client, text string) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.Session.WriteTimeout))
	if _, err := io.WriteString(c.conn, text); err != nil {
		c.log.Debug().Err(err).Msg("handshake write failed")
		return false
	}
	return true
}

func (h *Handler) authenticate(ctx context.Context, c *client) state {
	username, password := c.username, c.password
	c.password = ""

	var isAdmin bool
	switch c.choice {
	case proto.ChoiceRegister:
		if err := h.gate.Register(ctx, username, password); err != nil {
			c.log.Info().Err(err).Str("user", username).Msg("registration failed")
			h.Metrics.AuthFailed("registration")
			h.write(c, proto.ReplyRegistrationFailed)
			return stateClosed
		}
		if !h.write(c, proto.ReplyRegistered) {
			return stateClosed
		}
	default:
		granted, err := h.gate.Login(ctx, username, password)
		if err != nil {
			c.log.Info().Err(err).Str("user", username).Msg("login failed")
			h.Metrics.AuthFailed("credentials")
			h.write(c, proto.ReplyInvalidCredentials)
			return stateClosed
		}
		isAdmin = granted
	}

	s := core.NewSession(utils.NewID(), username, c.conn, isAdmin, h.opts.Session)
	if err := h.registry.Add(s); err != nil {
		reply := proto.ReplyAlreadyOnline
		reason := core.ErrCodeAlreadyOnline
		var rejected *core.RejectedError
		if errors.As(err, &rejected) {
			reason = rejected.Code
		}
		if errors.Is(err, core.ErrBanned) {
			reply = proto.ReplyBanned
		}
		c.log.Info().Str("user", username).Str("reason", reason).Msg("session rejected")
		h.Metrics.AuthFailed(reason)
		_ = s.Send(reply)
		h.flush(s)
		return stateClosed
	}

	c.session = s
	c.log = c.log.With().Str("session_id", s.ID).Str("user", username).Logger()
	c.log.Info().Bool("admin", isAdmin).Msg("user joined")

	h.send(c, proto.ReplyWelcome)
	h.broadcaster.Publish(core.ServerIdentity, username+proto.TextJoined, username)
	return stateAuthenticated
}

func (h *Handler) serveLine(ctx context.Context, c *client) state {
	line, err := c.reader.next()
	if err != nil {
		h.logReadError(c, err)
		return stateClosed
	}

	s := c.session
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		return stateAuthenticated

	case strings.EqualFold(text, proto.CommandQuit):
		h.send(c, proto.ReplyGoodbye)
		return stateClosed

	case isAdminLine(text):
		if !s.IsAdmin {
			h.send(c, proto.ReplyPermissionDenied)
			return stateAuthenticated
		}
		reply := h.processor.Execute(ctx, s.Identity, text[len(proto.CommandAdmin):])
		h.send(c, reply+"\n")
		if reply == admin.ShutdownReply {
			if h.OnShutdown != nil {
				h.OnShutdown()
			}
			return stateClosed
		}
		return stateAuthenticated

	case h.registry.IsMuted(s.Identity):
		h.Metrics.MessageDropped("muted")
		h.send(c, proto.ReplyMuted)
		return stateAuthenticated

	case !c.limiter.allow(time.Now()):
		h.Metrics.MessageDropped("rate_limited")
		h.send(c, proto.ReplyRateLimited)
		return stateAuthenticated

	default:
		h.broadcaster.Publish(s.Identity, text, s.Identity)
		h.record(ctx, c, text)
		return stateAuthenticated
	}
}

// send queues text to the client's own session. A session that cannot keep
// up with its own replies is aborted.
func (h *Handler) send(c *client, text string) {
	err := c.session.Send(text)
	if err == nil || errors.Is(err, core.ErrSessionClosed) {
		return
	}
	c.log.Warn().Err(err).Msg("reply dropped")
	c.session.Abort()
}

func (h *Handler) record(ctx context.Context, c *client, text string) {
	if h.MessageLog == nil {
		return
	}
	msg := &store.Message{Sender: c.session.Identity, Body: text, CreatedAt: time.Now().UTC()}
	if err := h.MessageLog.SaveMessage(ctx, msg); err != nil {
		c.log.Error().Err(err).Msg("failed to log message")
	}
}

func (h *Handler) teardown(c *client) {
	s := c.session
	if s == nil {
		c.log.Debug().Msg("connection closed before admission")
		return
	}

	h.registry.Release(s)
	h.flush(s)
	h.broadcaster.Publish(core.ServerIdentity, s.Identity+proto.TextLeft, "")
	c.log.Info().Dur("online", time.Since(s.JoinedAt)).Msg("user left")
}

// flush closes s and waits for queued lines to be written.
func (h *Handler) flush(s *core.Session) {
	s.Close()
	timer := time.NewTimer(h.opts.Session.WriteTimeout)
	defer timer.Stop()
	select {
	case <-s.Done():
	case <-timer.C:
		s.Abort()
	}
}

func (h *Handler) logReadError(c *client, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.log.Debug().Msg("client disconnected")
	case errors.As(err, &netErr) && netErr.Timeout():
		c.log.Info().Dur("idle_timeout", h.opts.IdleTimeout).Msg("client idle, closing")
	case errors.Is(err, bufio.ErrTooLong):
		c.log.Warn().Int("max_line_bytes", h.opts.MaxLineBytes).Msg("line too long, closing")
	default:
		c.log.Warn().Err(err).Msg("read failed")
	}
}

// isAdminLine matches "/admin" alone or followed by whitespace, case-insensitively.
func isAdminLine(text string) bool {
	n := len(proto.CommandAdmin)
	if len(text) < n || !strings.EqualFold(text[:n], proto.CommandAdmin) {
		return false
	}
	return len(text) == n || text[n] == ' ' || text[n] == '\t'
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
