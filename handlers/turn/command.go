package turn

import "strings"

// Command is a reserved input that is handled without calling the model.
type Command int

const (
	CommandNone Command = iota
	CommandQuit
	CommandClear
	CommandHelp
)

var commandTokens = map[string]Command{
	"/quit":  CommandQuit,
	"/clear": CommandClear,
	"/help":  CommandHelp,
}

func (c Command) String() string {
	switch c {
	case CommandQuit:
		return "quit"
	case CommandClear:
		return "clear"
	case CommandHelp:
		return "help"
	}
	return "none"
}

// Classify matches the trimmed input case-insensitively against the reserved
// tokens. Anything else, including "/clear now", is a live message.
func Classify(raw string) Command {
	return commandTokens[strings.ToLower(strings.TrimSpace(raw))]
}

// DefaultHelpText lists the commands.
const DefaultHelpText = `Commands:
  /quit   end the session
  /clear  forget the conversation so far
  /help   show this message
Anything else is sent to the tutor.`
