package models

import "time"

// MessageKind identifies the payload variant carried by a message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
	KindAudio MessageKind = "audio"
	KindFile  MessageKind = "file"
	KindOffer MessageKind = "offer"
)

// DeliveryState tracks a message through its lifecycle. Transitions are
// monotonic along sending -> sent -> delivered -> read; failed is reachable
// only from sending and is left again only by an explicit retry.
type DeliveryState string

const (
	StateSending   DeliveryState = "sending"
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
	StateFailed    DeliveryState = "failed"
)

var stateRank = map[DeliveryState]int{
	StateSending:   0,
	StateSent:      1,
	StateDelivered: 2,
	StateRead:      3,
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
// failed -> sending (retry) is handled separately and deliberately excluded.
func (s DeliveryState) CanAdvanceTo(next DeliveryState) bool {
	if s == StateFailed || next == StateFailed {
		// failed is only entered from sending
		return s == StateSending && next == StateFailed
	}
	return stateRank[next] > stateRank[s]
}

// Message is one chat communication unit. Identity is the server-assigned ID
// once known, and the client-generated ProvisionalID before that. After
// confirmation the provisional id remains as an alias so late push events can
// still resolve the entry.
type Message struct {
	ID             string
	ProvisionalID  string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Kind           MessageKind
	Payload        Payload
	DeliveryState  DeliveryState
	FailureReason  string
	IsEdited       bool
	EditedAt       *time.Time
	DeletedAt      *time.Time
	CreatedAt      time.Time
	SentAt         *time.Time
	DeliveredAt    *time.Time
	ReadAt         *time.Time

	// Seq is the store insertion sequence, used to break CreatedAt ties.
	Seq uint64
}

// Key returns the current lookup identity: the server id when known,
// otherwise the provisional id.
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.ProvisionalID
}

// Inbound reports whether the message was sent by the other party.
func (m *Message) Inbound(selfID string) bool {
	return m.SenderID != selfID
}

// Pending reports whether the message has not yet been confirmed by the
// server (still sending, or failed and awaiting a user retry).
func (m *Message) Pending() bool {
	return m.DeliveryState == StateSending || m.DeliveryState == StateFailed
}

// Before defines the display order within a conversation: CreatedAt first,
// insertion sequence as the tie breaker.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
