// Package transport defines the messaging-platform abstraction behind the
// operator surface. Only Telegram is implemented today; the notifier and
// the command handlers depend on these types, never on telebot directly.
package transport

import "context"

// Update is one inbound item from the platform's long poll.
type Update struct {
	Message *Message
}

// Message is an inbound chat message, flattened to the fields the command
// handlers actually read.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

// ChatTarget addresses an outbound send.
type ChatTarget struct {
	ChatID int64
}

// MessageRef identifies a delivered message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Notification is the notifier's unit of work. Priority runs 0 (low) to 10
// (high) and only affects message decoration, not ordering.
type Notification struct {
	Priority int
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

// Adapter is a platform connection. Start begins pumping updates into out
// and returns immediately; Stop flushes and disconnects.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
