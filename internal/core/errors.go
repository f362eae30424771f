package core

import "errors"

// Rejection codes for sessions the registry refuses to admit.
const (
	ErrCodeBanned        = "banned"
	ErrCodeAlreadyOnline = "already_online"
)

var (
	// ErrBanned is returned when a banned identity tries to join.
	ErrBanned = &RejectedError{Code: ErrCodeBanned, Message: "identity is banned"}
	// ErrAlreadyOnline is returned when the identity already has a live session.
	ErrAlreadyOnline = &RejectedError{Code: ErrCodeAlreadyOnline, Message: "identity already online"}

	// ErrSessionClosed is returned by Send after the session was closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrOutboxFull is returned by Send when the peer is not draining its outbox.
	ErrOutboxFull = errors.New("session outbox full")
)

// RejectedError describes why the registry refused a session.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}
