package models

import "time"

// Profile is the display metadata for a chat participant.
type Profile struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Conversation summarizes one two-party thread for the conversation list.
// UnreadCount is a cached value; the aggregator recomputes it from the
// message store rather than incrementing it in place.
type Conversation struct {
	ID               string
	OtherParticipant Profile
	LastMessage      *Message
	UnreadCount      int
	UpdatedAt        time.Time
}

// RecencyKey is the timestamp conversations are sorted by: the last message
// time when one is known, falling back to UpdatedAt.
func (c *Conversation) RecencyKey() time.Time {
	if c.LastMessage != nil && !c.LastMessage.CreatedAt.IsZero() {
		return c.LastMessage.CreatedAt
	}
	return c.UpdatedAt
}
