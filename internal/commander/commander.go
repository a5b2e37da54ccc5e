package commander

import "context"

// Commander is the chat transport used by the bot.
type Commander interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// ActionTyping shows the "typing..." indicator.
const ActionTyping = "typing"

// ParseModeHTML marks message text as Telegram HTML.
const ParseModeHTML = "HTML"

// SendOptions tweak an outgoing message. Zero value sends plain text.
type SendOptions struct {
	ReplyTo   int64
	ParseMode string
	// Keyboard is a reply keyboard, one slice per row.
	Keyboard [][]string
}

// Update represents an incoming update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message represents a source message.
type Message struct {
	MessageID int64   `json:"message_id"`
	From      *User   `json:"from,omitempty"`
	Chat      Chat    `json:"chat"`
	Text      *string `json:"text,omitempty"`
	Date      int64   `json:"date"`
}

// User is the sender of a message.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// Chat identifies a conversation.
type Chat struct {
	ID int64 `json:"id"`
}
