// Package gateway abstracts the chat platform connection.
//
// A Connection is single-use: it is handed out already connected, delivers
// inbound events until it dies, and is replaced (not resurrected) by the
// caller. Retry policy lives in the bot runtime; this package only reports
// whether a failure is worth retrying.
package gateway

import (
	"context"
	"errors"
)

// ErrInvalidToken means the gateway rejected the credential. Retrying with
// the same token can never succeed.
var ErrInvalidToken = errors.New("gateway: invalid token")

// IsRetryable reports whether a dial or connection error may succeed on a
// later attempt. Credential rejections are permanent; everything else
// (network failures, server restarts, timeouts) is transient.
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrInvalidToken)
}

// EventType discriminates inbound events.
type EventType string

const (
	// EventMessage is free-form chat addressed to the bot.
	EventMessage EventType = "message"
	// EventCommand is a registered slash-style command invocation.
	EventCommand EventType = "command"
)

// Event is one inbound interaction.
type Event struct {
	Type      EventType
	GuildID   string
	ChannelID string
	UserID    string
	// FromBot marks traffic authored by any bot account. Runtimes drop it
	// to prevent feedback loops between sibling bots.
	FromBot bool
	// Admin reports whether the author holds guild admin permissions.
	Admin   bool
	Command string
	Content string
}

// CommandSpec is what a bot registers with the gateway.
type CommandSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AdminOnly   bool   `json:"admin_only"`
}

// Connection is one live gateway session.
type Connection interface {
	// Events delivers inbound events. The channel is closed when the
	// connection dies for any reason; Err then reports why.
	Events() <-chan Event

	// Send posts a message to a channel.
	Send(ctx context.Context, channelID, content string) error

	// RegisterCommands declares the commands this bot serves. Called once
	// per connection, after dial.
	RegisterCommands(ctx context.Context, cmds []CommandSpec) error

	// Close tears the connection down. Safe to call multiple times.
	Close() error

	// Err reports why the connection died. Nil while alive or after a
	// locally initiated Close.
	Err() error
}

// Dialer establishes connections. Runtimes hold a Dialer, never a concrete
// transport, so tests substitute in-memory fakes.
type Dialer interface {
	Dial(ctx context.Context, token string) (Connection, error)
}
