package events

import (
	"sync"

	"chatsync/internal/models"

	"github.com/sirupsen/logrus"
)

// Kind names one variant of the closed event set.
type Kind string

const (
	KindMessageAppended        Kind = "message_appended"
	KindMessageStateChanged    Kind = "message_state_changed"
	KindConversationBumped     Kind = "conversation_bumped"
	KindTypingChanged          Kind = "typing_changed"
	KindProfileUpdated         Kind = "profile_updated"
	KindConnectionStateChanged Kind = "connection_state_changed"
)

// Event is a tagged cross-cutting notification. Only the fields relevant to
// its Kind are populated.
type Event struct {
	Kind            Kind
	ConversationID  string
	Message         *models.Message
	Conversation    *models.Conversation
	UserID          string
	IsTyping        bool
	Profile         *models.Profile
	ConnectionState models.ConnectionState
}

type subscriber struct {
	kinds map[Kind]bool
	ch    chan Event
}

// Bus dispatches typed events to subscribers. Delivery is non-blocking: a
// subscriber that cannot keep up drops events rather than stalling the
// publisher, which may be a push handler.
type Bus struct {
	mu     sync.RWMutex
	logger *logrus.Logger
	subs   []*subscriber
}

func NewBus(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{logger: logger}
}

// Subscribe returns a channel receiving the requested kinds, or every kind
// when none are given.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub.ch
}

// Publish fans the event out to matching subscribers without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.kinds != nil && !sub.kinds[ev.Kind] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.WithField("event_kind", ev.Kind).Warn("Dropping event for slow subscriber")
		}
	}
}
