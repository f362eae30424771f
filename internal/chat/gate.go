// Package chat drives one client connection through the line protocol.
package chat

import "context"

// Gate checks credentials during the handshake. *auth.Service implements it.
type Gate interface {
	// Login verifies credentials and reports whether the user is an admin.
	Login(ctx context.Context, username, password string) (bool, error)
	// Register creates a regular account.
	Register(ctx context.Context, username, password string) error
}
