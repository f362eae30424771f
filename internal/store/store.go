package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("conflict")
)

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Message represents a logged chat line.
type Message struct {
	ID        int64
	Sender    string
	Body      string
	CreatedAt time.Time
}

// Warning represents a persisted moderation warning.
type Warning struct {
	ID        int64
	Username  string
	Reason    string
	CreatedAt time.Time
}

// Moderation is the persisted moderation state loaded at startup.
type Moderation struct {
	Banned   []string
	Muted    []string
	Warnings []*Warning // ordered by issue time
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	// Returns ErrConflict if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SetAdmin grants or revokes admin rights.
	SetAdmin(ctx context.Context, username string, isAdmin bool) error
}

// MessageStore is the chat message log.
type MessageStore interface {
	// SaveMessage appends a message to the log and sets its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit most recent messages, oldest first.
	ListMessages(ctx context.Context, limit int) ([]*Message, error)
}

// ModerationStore journals moderation actions.
type ModerationStore interface {
	AddBan(ctx context.Context, username string) error
	AddMute(ctx context.Context, username string) error
	RemoveMute(ctx context.Context, username string) error
	AddWarning(ctx context.Context, w *Warning) error

	// LoadModeration reads the full journal.
	LoadModeration(ctx context.Context) (*Moderation, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	ModerationStore

	// Close closes the underlying database connection.
	Close() error
}
