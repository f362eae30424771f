package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/core"
)

const consoleHelp = `Commands:
  /kick <user>            disconnect a user
  /ban <user>             ban a user permanently
  /mute <user>            stop a user's messages
  /unmute <user>          lift a mute
  /warn <user> <reason>   warn a user
  /history <user>         list a user's warnings
  /list                   list online users
  /broadcast <text>       send an admin broadcast
  /shutdown               disconnect everyone and stop
  /quit                   stop the server
Any other text is sent to everyone as ADMIN.`

// Console is the operator's line-oriented admin interface.
type Console struct {
	processor   *Processor
	broadcaster *core.Broadcaster
	in          io.Reader
	out         io.Writer
	log         *zerolog.Logger

	// OnShutdown is called on /quit and after a shutdown command.
	OnShutdown func()
}

// NewConsole builds a console reading commands from in and printing replies to out.
func NewConsole(p *Processor, b *core.Broadcaster, in io.Reader, out io.Writer, logger *zerolog.Logger) *Console {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Console{processor: p, broadcaster: b, in: in, out: out, log: logger}
}

// Run processes console lines until ctx is done, input ends or the operator quits.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	fmt.Fprintln(c.out, "ADMIN CONSOLE (type /help for commands)")
	for {
		fmt.Fprint(c.out, "ADMIN> ")
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case line := <-lines:
			if c.handle(ctx, strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// handle runs one console line and reports whether the console should stop.
func (c *Console) handle(ctx context.Context, line string) bool {
	switch {
	case line == "":
		return false
	case strings.EqualFold(line, "/quit"):
		c.shutdown()
		return true
	case strings.EqualFold(line, "/help"):
		fmt.Fprintln(c.out, consoleHelp)
		return false
	case strings.HasPrefix(line, "/"):
		reply := c.processor.Execute(ctx, core.AdminIdentity, line)
		fmt.Fprintf(c.out, "Server: %s\n", reply)
		if reply == ShutdownReply {
			c.shutdown()
			return true
		}
		return false
	default:
		n := c.broadcaster.Publish(core.AdminIdentity, line, "")
		c.log.Debug().Int("recipients", n).Msg("console broadcast")
		return false
	}
}

func (c *Console) shutdown() {
	if c.OnShutdown != nil {
		c.OnShutdown()
	}
}
