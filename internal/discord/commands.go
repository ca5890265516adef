package discord

import "strings"

// Command is a parsed operator command, e.g. "!plug test 50 3s".
type Command struct {
	Name string
	Args []string

	AuthorID  string
	ChannelID string
	GuildID   string
}

// Known command names. Execution lives in the app; this package only parses.
const (
	CmdConnect    = "connect"
	CmdDisconnect = "disconnect"
	CmdTest       = "test"
	CmdStop       = "stop"
	CmdDevices    = "devices"
	CmdHistory    = "history"
	CmdFocus      = "focus"
	CmdStatus     = "status"
)

// ParseCommand splits a prefixed message into name + args.
// A bare prefix (or prefix followed by nothing) parses as "status".
func ParseCommand(content, prefix string) (Command, bool) {
	if !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	if rest == "" {
		return Command{Name: CmdStatus}, true
	}
	fields := strings.Fields(rest)
	return Command{
		Name: strings.ToLower(fields[0]),
		Args: fields[1:],
	}, true
}
