package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

const probe = "\x00"

type client struct {
	conn      net.Conn
	heartbeat time.Duration
}

// session copies server output to out and input lines to the server until
// the server closes, input ends, /quit is sent or ctx is done.
func (c *client) session(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(out, c.conn)
		serverDone <- err
		cancel()
	}()

	writes := make(chan string)
	go c.readInput(ctx, in, writes)

	var tick <-chan time.Time
	if c.heartbeat > 0 {
		ticker := time.NewTicker(c.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	quitting := false
	for {
		select {
		case <-ctx.Done():
			select {
			case err := <-serverDone:
				if err != nil && !errors.Is(err, net.ErrClosed) {
					return err
				}
				return nil
			default:
				return ctx.Err()
			}

		case <-tick:
			if quitting {
				continue
			}
			if _, err := io.WriteString(c.conn, probe); err != nil {
				return err
			}

		case line, ok := <-writes:
			if !ok {
				// Input ended: leave politely and wait for the server to close.
				writes = nil
				if !quitting {
					quitting = true
					if _, err := io.WriteString(c.conn, "/quit\n"); err != nil {
						return err
					}
				}
				continue
			}
			if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
				return err
			}
			if strings.EqualFold(strings.TrimSpace(line), "/quit") {
				quitting = true
			}
		}
	}
}

func (c *client) readInput(ctx context.Context, in io.Reader, writes chan<- string) {
	defer close(writes)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case writes <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}
