package admin

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownCommand is returned for command names outside the closed set.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidFormat is returned for empty input or wrong arity.
	ErrInvalidFormat = errors.New("invalid command format")
)

// unbounded marks a variadic trailing argument.
const unbounded = -1

type commandSpec struct {
	minArgs int
	maxArgs int
	build   func(args []string) Command
}

var specs = map[string]commandSpec{
	"kick":      {1, 1, func(a []string) Command { return Kick{User: a[0]} }},
	"ban":       {1, 1, func(a []string) Command { return Ban{User: a[0]} }},
	"mute":      {1, 1, func(a []string) Command { return Mute{User: a[0]} }},
	"unmute":    {1, 1, func(a []string) Command { return Unmute{User: a[0]} }},
	"warn":      {2, unbounded, func(a []string) Command { return Warn{User: a[0], Reason: strings.Join(a[1:], " ")} }},
	"history":   {1, 1, func(a []string) Command { return History{User: a[0]} }},
	"list":      {0, 0, func([]string) Command { return List{} }},
	"broadcast": {1, unbounded, func(a []string) Command { return Broadcast{Text: strings.Join(a, " ")} }},
	"shutdown":  {0, 0, func([]string) Command { return Shutdown{} }},
}

// Parse turns a whitespace-separated command line into a Command.
// The leading slash is optional and the name is case-insensitive.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrInvalidFormat
	}

	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	spec, ok := specs[name]
	if !ok {
		return nil, ErrUnknownCommand
	}

	args := fields[1:]
	if len(args) < spec.minArgs || (spec.maxArgs != unbounded && len(args) > spec.maxArgs) {
		return nil, ErrInvalidFormat
	}
	return spec.build(args), nil
}
