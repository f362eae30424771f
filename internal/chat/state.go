package chat

// state is a position in the per-connection protocol.
type state int

const (
	stateAwaitingChoice state = iota
	stateAwaitingUsername
	stateAwaitingPassword
	stateAuthenticating
	stateAuthenticated
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateAwaitingChoice:
		return "awaiting_choice"
	case stateAwaitingUsername:
		return "awaiting_username"
	case stateAwaitingPassword:
		return "awaiting_password"
	case stateAuthenticating:
		return "authenticating"
	case stateAuthenticated:
		return "authenticated"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
