package models

import (
	"encoding/json"
	"fmt"
)

// Payload is the tagged union of message body variants. Modeling the body per
// kind keeps invalid field combinations unrepresentable.
type Payload interface {
	payloadKind() MessageKind
}

// TextPayload carries plain text content.
type TextPayload struct {
	Body string `json:"body"`
}

func (TextPayload) payloadKind() MessageKind { return KindText }

// MediaPayload carries a durable remote URL for image, video, audio and file
// messages. URL is empty while an upload is still in flight.
type MediaPayload struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
}

func (MediaPayload) payloadKind() MessageKind { return KindImage }

// OfferPayload carries the structured record attached to offer messages.
type OfferPayload struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
	Status   string  `json:"status"`
	Terms    string  `json:"terms,omitempty"`
}

func (OfferPayload) payloadKind() MessageKind { return KindOffer }

// MarshalPayload serializes a payload for caching or the wire.
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// UnmarshalPayload reconstructs the payload variant matching kind.
func UnmarshalPayload(kind MessageKind, data []byte) (Payload, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch kind {
	case KindText:
		var p TextPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode text payload: %w", err)
		}
		return p, nil
	case KindImage, KindVideo, KindAudio, KindFile:
		var p MediaPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode media payload: %w", err)
		}
		return p, nil
	case KindOffer:
		var p OfferPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode offer payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown message kind: %s", kind)
	}
}
