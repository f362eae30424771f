package core

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultOutboxSize   = 64
	defaultWriteTimeout = 10 * time.Second
)

// SessionOptions tunes the outbound side of a session.
type SessionOptions struct {
	// OutboxSize bounds the number of queued lines before Send reports ErrOutboxFull.
	OutboxSize int
	// WriteTimeout bounds a single network write.
	WriteTimeout time.Duration
}

// Session is the live binding of an authenticated identity to its connection.
//
// All writes to the connection happen on the session's own writer goroutine,
// so lines queued by one caller arrive in the order they were queued.
type Session struct {
	ID       string
	Identity string
	IsAdmin  bool
	JoinedAt time.Time

	conn         net.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	outbox chan string
	broken atomic.Bool
	done   chan struct{}
}

// NewSession wraps conn and starts the session's writer.
func NewSession(id, identity string, conn net.Conn, isAdmin bool, opts SessionOptions) *Session {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaultOutboxSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	s := &Session{
		ID:           id,
		Identity:     identity,
		IsAdmin:      isAdmin,
		JoinedAt:     time.Now(),
		conn:         conn,
		writeTimeout: opts.WriteTimeout,
		outbox:       make(chan string, opts.OutboxSize),
		done:         make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Send queues text for delivery without blocking on the network.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.broken.Load() {
		return ErrSessionClosed
	}
	select {
	case s.outbox <- text:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close stops accepting lines; queued lines are flushed before the
// connection is closed. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.outbox)
	}
	s.mu.Unlock()
}

// Abort closes the connection immediately, dropping anything still queued.
// A reader blocked on the connection observes an error and tears down.
func (s *Session) Abort() {
	s.broken.Store(true)
	s.Close()
	_ = s.conn.Close()
}

// Done is closed once the writer exited and the connection is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// RemoteAddr reports the peer address for logging.
func (s *Session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (s *Session) writeLoop() {
	defer close(s.done)

	for text := range s.outbox {
		if s.broken.Load() {
			continue
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if _, err := io.WriteString(s.conn, text); err != nil {
			// The reader sees the closed connection and tears the session down.
			s.broken.Store(true)
			_ = s.conn.Close()
		}
	}
	_ = s.conn.Close()
}
