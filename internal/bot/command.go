package bot

import (
	"context"
	"strings"

	cmdpkg "github.com/stupiduntilnot/kinobot/internal/commander"
)

// Command is what an incoming message asks the bot to do.
type Command int

const (
	// CommandQuery treats the text as a movie title. Unknown slash commands
	// are queries too.
	CommandQuery Command = iota
	CommandHelp
	CommandHistory
	CommandStats
)

func (c Command) String() string {
	switch c {
	case CommandHelp:
		return "help"
	case CommandHistory:
		return "history"
	case CommandStats:
		return "stats"
	default:
		return "query"
	}
}

// ParseCommand maps message text to a Command. "/cmd@botname" is accepted.
func ParseCommand(text string) Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return CommandQuery
	}
	word, _, _ := strings.Cut(text, " ")
	word, _, _ = strings.Cut(word, "@")
	switch strings.ToLower(word) {
	case "/start", "/help":
		return CommandHelp
	case "/history":
		return CommandHistory
	case "/stats":
		return CommandStats
	default:
		return CommandQuery
	}
}

// Handler answers one message. Handlers are method expressions on *Bot.
type Handler func(b *Bot, ctx context.Context, msg *cmdpkg.Message) error

// Route returns the handler for cmd.
func Route(cmd Command) Handler {
	switch cmd {
	case CommandHelp:
		return (*Bot).handleHelp
	case CommandHistory:
		return (*Bot).handleHistory
	case CommandStats:
		return (*Bot).handleStats
	default:
		return (*Bot).handleQuery
	}
}
