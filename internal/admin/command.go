// Package admin parses and executes moderation commands.
//
// Commands arrive from three places: an admin session's "/admin ..." line, the
// operator console, and the HTTP admin API. All of them go through Parse and
// Processor.Execute, which always returns a reply string for the caller.
package admin

// ShutdownReply is returned by the shutdown command. Callers own the process
// lifecycle and react to it.
const ShutdownReply = "SHUTDOWN"

// Command is one parsed admin command. The set of implementations is closed.
type Command interface {
	Name() string
	command()
}

// Kick force-disconnects an online user.
type Kick struct{ User string }

// Ban permanently bans a user and disconnects them if online.
type Ban struct{ User string }

// Mute stops a user's chat lines from reaching anyone.
type Mute struct{ User string }

// Unmute lifts a mute.
type Unmute struct{ User string }

// Warn records a warning and notifies the user if online.
type Warn struct {
	User   string
	Reason string
}

// History lists a user's warnings.
type History struct{ User string }

// List lists online users.
type List struct{}

// Broadcast sends an admin notice to everyone.
type Broadcast struct{ Text string }

// Shutdown disconnects everyone and asks the caller to stop the server.
type Shutdown struct{}

func (Kick) Name() string      { return "kick" }
func (Ban) Name() string       { return "ban" }
func (Mute) Name() string      { return "mute" }
func (Unmute) Name() string    { return "unmute" }
func (Warn) Name() string      { return "warn" }
func (History) Name() string   { return "history" }
func (List) Name() string      { return "list" }
func (Broadcast) Name() string { return "broadcast" }
func (Shutdown) Name() string  { return "shutdown" }

func (Kick) command()      {}
func (Ban) command()       {}
func (Mute) command()      {}
func (Unmute) command()    {}
func (Warn) command()      {}
func (History) command()   {}
func (List) command()      {}
func (Broadcast) command() {}
func (Shutdown) command()  {}
