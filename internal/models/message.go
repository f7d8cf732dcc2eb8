package models

import "time"

// ChatMessage represents an individual entry in the chat widget's message list. It carries
// the participant's role, the text content, and the message's streaming state, which the
// renderer uses to distinguish a typing-indicator placeholder from an open streaming
// message and from settled content.
type ChatMessage struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time

	StreamingState string
}

// Role represents the author of a chat message.
type Role string

const (
	// RoleUser marks a message typed by the user.
	RoleUser Role = "user"
	// RoleBot marks a message produced by the bot.
	RoleBot Role = "bot"
	// RoleSystem marks a locally generated notice, such as a disconnect warning.
	// System messages never cross the socket.
	RoleSystem Role = "system"
)

const (
	// StreamingStateLoading marks the typing-indicator placeholder shown while a
	// response is outstanding and no content has arrived yet.
	StreamingStateLoading = "loading"
	// StreamingStateStreaming marks the single open message accumulating chunks.
	StreamingStateStreaming = "streaming"
	// StreamingStateEnded marks settled content.
	StreamingStateEnded = "ended"
)
