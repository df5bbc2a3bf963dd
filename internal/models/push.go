package models

// Push channel event names, inbound and outbound.
const (
	PushEventNewMessage     = "new_message"
	PushEventMessageRead    = "message_read"
	PushEventUserTyping     = "user_typing"
	PushEventUserStopped    = "user_stopped_typing"
	PushEventProfileUpdated = "profile_updated"

	PushEventAuthenticate = "authenticate"
	PushEventTypingStart  = "typing_start"
	PushEventTypingStop   = "typing_stop"
	PushEventMarkRead     = "mark_read"
)

// PushEvent is the closed set of decoded push channel events.
type PushEvent interface {
	pushEvent()
}

// NewMessageEvent carries a freshly delivered message.
type NewMessageEvent struct {
	ConversationID string
	Message        *Message
}

func (NewMessageEvent) pushEvent() {}

// TypingEvent signals that a user started or stopped typing.
type TypingEvent struct {
	ConversationID string
	UserID         string
	IsTyping       bool
}

func (TypingEvent) pushEvent() {}

// MessageReadEvent signals that the recipient has viewed a message.
type MessageReadEvent struct {
	ConversationID string
	MessageID      string
	ReaderID       string
}

func (MessageReadEvent) pushEvent() {}

// ProfileUpdatedEvent signals that a user's display metadata changed.
type ProfileUpdatedEvent struct {
	Profile Profile
}

func (ProfileUpdatedEvent) pushEvent() {}

// ConnectionState reflects the push channel's health. The engine keeps
// working over REST while reconnecting.
type ConnectionState string

const (
	ConnectionConnected    ConnectionState = "connected"
	ConnectionReconnecting ConnectionState = "reconnecting"
	ConnectionClosed       ConnectionState = "closed"
)
