// Package proto holds the wire strings of the line protocol.
package proto

// Probe is the liveness byte a client sends to keep an idle session open.
const Probe = '\x00'

// Handshake prompts, server to client.
const (
	PromptChoice   = "Login or Register? (L/R): "
	PromptUsername = "Username: "
	PromptPassword = "Password: "
)

// Handshake choices, client to server (case-insensitive).
const (
	ChoiceLogin    = "L"
	ChoiceRegister = "R"
)

// Handshake outcomes.
const (
	ReplyInvalidChoice      = "Invalid choice.\n"
	ReplyRegistered         = "Registered successfully.\n"
	ReplyRegistrationFailed = "Registration failed.\n"
	ReplyInvalidCredentials = "Invalid credentials.\n"
	ReplyBanned             = "You are banned.\n"
	ReplyAlreadyOnline      = "You are already logged in.\n"
	ReplyWelcome            = "Welcome! Type /quit to exit.\n"
)

// Steady state replies.
const (
	ReplyGoodbye          = "Goodbye!\n"
	ReplyPermissionDenied = "Permission denied.\n"
	ReplyMuted            = "You are muted.\n"
	ReplyRateLimited      = "You are sending messages too fast.\n"
)

// Commands recognised in the authenticated loop.
const (
	CommandQuit  = "/quit"
	CommandAdmin = "/admin"
)

// Notices pushed by moderation actions.
const (
	NoticeKicked   = "You have been kicked by the admin.\n"
	NoticeBanned   = "You have been banned.\n"
	NoticeShutdown = "Server is shutting down.\n"
	NoticeWarning  = "WARNING: "
)

// System notice bodies, sent with the Server identity.
const (
	TextJoined = " joined the chat"
	TextLeft   = " left the chat"
)
