package core

import "time"

// Reserved sender identities used for system notices.
const (
	ServerIdentity         = "Server"
	AdminIdentity          = "ADMIN"
	AdminBroadcastIdentity = "ADMIN BROADCAST"
)

// Message is the domain model for a chat line.
type Message struct {
	From      string
	Text      string
	CreatedAt time.Time
}

// Line renders the message the way recipients see it.
func (m Message) Line() string {
	return m.From + ": " + m.Text + "\n"
}

// Warning is a single moderation warning issued to an identity.
type Warning struct {
	Reason string
	At     time.Time
}

// Moderation is a copy of the registry's moderation state.
type Moderation struct {
	Banned   []string
	Muted    []string
	Warnings map[string][]Warning
}
