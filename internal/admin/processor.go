package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/metrics"
	"github.com/vovakirdan/linechat/internal/proto"
	"github.com/vovakirdan/linechat/internal/store"
)

// Replies for commands that could not be parsed.
const (
	ReplyUnknownCommand = "Unknown command"
	ReplyInvalidFormat  = "Invalid command format"
)

type handlerFunc func(ctx context.Context, cmd Command) string

// handle adapts a typed handler to the dispatch table.
func handle[C Command](fn func(context.Context, C) string) handlerFunc {
	return func(ctx context.Context, cmd Command) string {
		return fn(ctx, cmd.(C))
	}
}

// Processor executes admin commands against the registry.
type Processor struct {
	registry    *core.Registry
	broadcaster *core.Broadcaster
	journal     store.ModerationStore
	log         *zerolog.Logger
	metrics     *metrics.Metrics
	handlers    map[string]handlerFunc
}

// NewProcessor builds a processor. journal and m may be nil.
func NewProcessor(
	registry *core.Registry,
	broadcaster *core.Broadcaster,
	journal store.ModerationStore,
	logger *zerolog.Logger,
	m *metrics.Metrics,
) *Processor {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	p := &Processor{
		registry:    registry,
		broadcaster: broadcaster,
		journal:     journal,
		log:         logger,
		metrics:     m,
	}
	p.handlers = map[string]handlerFunc{
		Kick{}.Name():      handle(p.kick),
		Ban{}.Name():       handle(p.ban),
		Mute{}.Name():      handle(p.mute),
		Unmute{}.Name():    handle(p.unmute),
		Warn{}.Name():      handle(p.warn),
		History{}.Name():   handle(p.history),
		List{}.Name():      handle(p.list),
		Broadcast{}.Name(): handle(p.broadcast),
		Shutdown{}.Name():  handle(p.shutdown),
	}
	return p
}

// Execute parses and runs line on behalf of actor and returns the reply.
func (p *Processor) Execute(ctx context.Context, actor, line string) string {
	cmd, err := Parse(line)
	if err != nil {
		p.log.Debug().Err(err).Str("actor", actor).Str("line", line).Msg("rejected admin command")
		if errors.Is(err, ErrUnknownCommand) {
			return ReplyUnknownCommand
		}
		return ReplyInvalidFormat
	}
	return p.Run(ctx, actor, cmd)
}

// Run executes an already parsed command.
func (p *Processor) Run(ctx context.Context, actor string, cmd Command) string {
	h, ok := p.handlers[cmd.Name()]
	if !ok {
		return ReplyUnknownCommand
	}

	p.metrics.AdminCommand(cmd.Name())
	reply := h(ctx, cmd)
	p.log.Info().Str("actor", actor).Str("command", cmd.Name()).Str("reply", reply).Msg("admin command")
	return reply
}

// ShutdownAll notifies and disconnects every session. Moderation state is kept.
func (p *Processor) ShutdownAll() int {
	n := p.registry.Clear(proto.NoticeShutdown)
	p.log.Info().Int("sessions", n).Msg("disconnected all sessions")
	return n
}

func (p *Processor) kick(_ context.Context, c Kick) string {
	if !p.registry.Kick(c.User, proto.NoticeKicked) {
		return fmt.Sprintf("User %s not found", c.User)
	}
	return "Kicked " + c.User
}

func (p *Processor) ban(ctx context.Context, c Ban) string {
	p.registry.Ban(c.User, proto.NoticeBanned)
	if p.journal != nil {
		if err := p.journal.AddBan(ctx, c.User); err != nil {
			p.log.Error().Err(err).Str("user", c.User).Msg("failed to persist ban")
		}
	}
	return "Banned " + c.User
}

func (p *Processor) mute(ctx context.Context, c Mute) string {
	p.registry.Mute(c.User)
	if p.journal != nil {
		if err := p.journal.AddMute(ctx, c.User); err != nil {
			p.log.Error().Err(err).Str("user", c.User).Msg("failed to persist mute")
		}
	}
	return "Muted " + c.User
}

func (p *Processor) unmute(ctx context.Context, c Unmute) string {
	p.registry.Unmute(c.User)
	if p.journal != nil {
		if err := p.journal.RemoveMute(ctx, c.User); err != nil {
			p.log.Error().Err(err).Str("user", c.User).Msg("failed to persist unmute")
		}
	}
	return "Unmuted " + c.User
}

func (p *Processor) warn(ctx context.Context, c Warn) string {
	w := p.registry.Warn(c.User, c.Reason)
	if p.journal != nil {
		rec := &store.Warning{Username: c.User, Reason: w.Reason, CreatedAt: w.At}
		if err := p.journal.AddWarning(ctx, rec); err != nil {
			p.log.Error().Err(err).Str("user", c.User).Msg("failed to persist warning")
		}
	}
	p.registry.Notify(c.User, proto.NoticeWarning+c.Reason+"\n")
	return "Warned " + c.User
}

func (p *Processor) history(_ context.Context, c History) string {
	warnings := p.registry.Warnings(c.User)
	if len(warnings) == 0 {
		return "No warnings for " + c.User
	}

	lines := make([]string, len(warnings))
	for i, w := range warnings {
		lines[i] = "- " + w.Reason
	}
	return strings.Join(lines, "\n")
}

func (p *Processor) list(context.Context, List) string {
	online := p.registry.Online()
	if len(online) == 0 {
		return "Online Users: None"
	}
	return "Online Users: " + strings.Join(online, ", ")
}

func (p *Processor) broadcast(_ context.Context, c Broadcast) string {
	p.broadcaster.Publish(core.AdminBroadcastIdentity, c.Text, "")
	return "Broadcast sent"
}

func (p *Processor) shutdown(context.Context, Shutdown) string {
	p.ShutdownAll()
	return ShutdownReply
}
