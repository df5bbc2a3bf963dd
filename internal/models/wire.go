package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// WireMessage is the backend's JSON shape for a message. The backend uses
// snake_case field names; delivery state is not sent explicitly but derived
// from the read/delivered/sent timestamps, most advanced first.
type WireMessage struct {
	ID           string     `json:"id"`
	ChatID       string     `json:"chat_id"`
	SenderID     string     `json:"sender_id"`
	ReceiverID   string     `json:"receiver_id,omitempty"`
	Content      string     `json:"content"`
	MessageType  string     `json:"message_type"`
	MediaURL     string     `json:"media_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`
	IsRead       bool       `json:"is_read"`
	IsEdited     bool       `json:"is_edited"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// WireConversation is the backend's JSON shape for a conversation summary.
type WireConversation struct {
	ID            string       `json:"id"`
	Participant   Profile      `json:"participant"`
	LastMessage   *WireMessage `json:"last_message,omitempty"`
	UnreadCount   int          `json:"unread_count"`
	LastMessageAt *time.Time   `json:"last_message_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ToMessage converts a wire message into the domain model, building the
// payload variant for its kind and deriving the delivery state.
func (w *WireMessage) ToMessage() (*Message, error) {
	kind := MessageKind(w.MessageType)
	var payload Payload
	switch kind {
	case KindText:
		payload = TextPayload{Body: w.Content}
	case KindImage, KindVideo, KindAudio, KindFile:
		payload = MediaPayload{URL: w.MediaURL, ThumbnailURL: w.ThumbnailURL, MimeType: w.MimeType}
	case KindOffer:
		var p OfferPayload
		if err := json.Unmarshal([]byte(w.Content), &p); err != nil {
			return nil, fmt.Errorf("failed to decode offer content for message %s: %w", w.ID, err)
		}
		payload = p
	default:
		return nil, fmt.Errorf("unknown message type %q for message %s", w.MessageType, w.ID)
	}

	msg := &Message{
		ID:             w.ID,
		ConversationID: w.ChatID,
		SenderID:       w.SenderID,
		ReceiverID:     w.ReceiverID,
		Kind:           kind,
		Payload:        payload,
		DeliveryState:  w.deliveryState(),
		IsEdited:       w.IsEdited,
		EditedAt:       w.EditedAt,
		DeletedAt:      w.DeletedAt,
		CreatedAt:      w.CreatedAt,
		SentAt:         w.SentAt,
		DeliveredAt:    w.DeliveredAt,
		ReadAt:         w.ReadAt,
	}
	return msg, nil
}

func (w *WireMessage) deliveryState() DeliveryState {
	switch {
	case w.ReadAt != nil || w.IsRead:
		return StateRead
	case w.DeliveredAt != nil:
		return StateDelivered
	default:
		// The server only returns messages it has persisted.
		return StateSent
	}
}

// ToConversation converts a wire conversation summary into the domain model.
func (w *WireConversation) ToConversation() (*Conversation, error) {
	conv := &Conversation{
		ID:               w.ID,
		OtherParticipant: w.Participant,
		UnreadCount:      w.UnreadCount,
		UpdatedAt:        w.UpdatedAt,
	}
	if w.LastMessage != nil {
		msg, err := w.LastMessage.ToMessage()
		if err != nil {
			return nil, err
		}
		conv.LastMessage = msg
	}
	if conv.UpdatedAt.IsZero() && w.LastMessageAt != nil {
		conv.UpdatedAt = *w.LastMessageAt
	}
	return conv, nil
}

// FromMessage converts a domain message back into the wire shape, used when
// caching and in tests that fake the backend.
func FromMessage(m *Message) WireMessage {
	w := WireMessage{
		ID:          m.ID,
		ChatID:      m.ConversationID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		MessageType: string(m.Kind),
		IsRead:      m.DeliveryState == StateRead,
		IsEdited:    m.IsEdited,
		EditedAt:    m.EditedAt,
		DeletedAt:   m.DeletedAt,
		SentAt:      m.SentAt,
		DeliveredAt: m.DeliveredAt,
		ReadAt:      m.ReadAt,
		CreatedAt:   m.CreatedAt,
	}
	switch p := m.Payload.(type) {
	case TextPayload:
		w.Content = p.Body
	case MediaPayload:
		w.MediaURL = p.URL
		w.ThumbnailURL = p.ThumbnailURL
		w.MimeType = p.MimeType
	case OfferPayload:
		if data, err := json.Marshal(p); err == nil {
			w.Content = string(data)
		}
	}
	return w
}
