package service

import (
	"context"
	"sync"
	"time"

	"chatsync/internal/events"
	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/store"

	"github.com/sirupsen/logrus"
)

// PushChannel is the long-lived push subscription the bridge consumes.
type PushChannel interface {
	Events() <-chan models.PushEvent
	States() <-chan models.ConnectionState
	SendTyping(ctx context.Context, conversationID string, isTyping bool) error
	SendReadAck(ctx context.Context, conversationID, messageID string) error
}

// Reconciler refetches conversation history after a gap in push coverage.
type Reconciler interface {
	SyncConversation(ctx context.Context, conversationID string) error
}

// ReadMarker acknowledges unread inbound messages.
type ReadMarker interface {
	MarkConversationRead(ctx context.Context, conversationID string)
}

// ProfileSink receives participant display metadata updates.
type ProfileSink interface {
	UpdateProfile(profile models.Profile)
	Refresh(ctx context.Context) error
}

// EventBridge routes push events into the message store, the typing tracker,
// the read receipt tracker and the conversation aggregator. The handler
// itself never blocks on network I/O; anything that needs the network is
// scheduled as a fire-and-forget side effect.
type EventBridge struct {
	push     PushChannel
	store    *store.Store
	typing   *TypingTracker
	bus      *events.Bus
	sync     Reconciler
	reader   ReadMarker
	profiles ProfileSink
	logger   *logrus.Logger
	selfID   string

	mu        sync.Mutex
	active    map[string]bool
	connState models.ConnectionState
}

func NewEventBridge(push PushChannel, st *store.Store, typing *TypingTracker, bus *events.Bus, sync Reconciler, reader ReadMarker, profiles ProfileSink, selfID string, logger *logrus.Logger) *EventBridge {
	if logger == nil {
		logger = logrus.New()
	}
	return &EventBridge{
		push:      push,
		store:     st,
		typing:    typing,
		bus:       bus,
		sync:      sync,
		reader:    reader,
		profiles:  profiles,
		logger:    logger,
		selfID:    selfID,
		active:    make(map[string]bool),
		connState: models.ConnectionReconnecting,
	}
}

// Run consumes push events until ctx is canceled.
func (b *EventBridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.push.Events():
			if !ok {
				return
			}
			b.handleEvent(ctx, ev)
		case state, ok := <-b.push.States():
			if !ok {
				return
			}
			b.handleState(ctx, state)
		}
	}
}

// Watch marks a conversation as on-screen: its history is reconciled, unread
// inbound messages get acknowledged, and new inbound messages are marked
// read as they arrive.
func (b *EventBridge) Watch(ctx context.Context, conversationID string) {
	b.mu.Lock()
	b.active[conversationID] = true
	b.mu.Unlock()

	go func() {
		if b.sync != nil {
			if err := b.sync.SyncConversation(ctx, conversationID); err != nil {
				return
			}
		}
		if b.reader != nil {
			b.reader.MarkConversationRead(ctx, conversationID)
		}
	}()
}

// Unwatch marks a conversation as off-screen.
func (b *EventBridge) Unwatch(conversationID string) {
	b.mu.Lock()
	delete(b.active, conversationID)
	b.mu.Unlock()
}

func (b *EventBridge) isActive(conversationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active[conversationID]
}

// SendTyping publishes the local user's typing state.
func (b *EventBridge) SendTyping(ctx context.Context, conversationID string, isTyping bool) {
	if err := b.push.SendTyping(ctx, conversationID, isTyping); err != nil {
		b.logger.WithError(err).Debug("Typing signal not sent")
	}
}

// ConnectionState returns the current push channel health.
func (b *EventBridge) ConnectionState() models.ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connState
}

func (b *EventBridge) handleEvent(ctx context.Context, ev models.PushEvent) {
	metrics.IncrementCounter("push_events_total", nil, "Push events received")

	switch e := ev.(type) {
	case models.NewMessageEvent:
		b.handleNewMessage(ctx, e)

	case models.TypingEvent:
		if e.UserID == b.selfID {
			return
		}
		b.typing.Set(e.ConversationID, e.UserID, e.IsTyping)

	case models.MessageReadEvent:
		// Flips the outbound copy to read; stale or duplicate receipts are
		// no-ops because transitions are monotonic. A copy still awaiting
		// its send confirmation is left alone and picked up by the next
		// reconciliation fetch.
		if msg, ok := b.store.Get(e.ConversationID, e.MessageID); ok &&
			(msg.DeliveryState == models.StateSent || msg.DeliveryState == models.StateDelivered) {
			b.store.Advance(e.ConversationID, e.MessageID, models.StateRead, time.Now())
		}

	case models.ProfileUpdatedEvent:
		if b.profiles != nil {
			b.profiles.UpdateProfile(e.Profile)
		}

	default:
		b.logger.Debug("Ignoring unhandled push event")
	}
}

func (b *EventBridge) handleNewMessage(ctx context.Context, e models.NewMessageEvent) {
	if e.Message == nil {
		return
	}
	if !b.store.Append(e.Message) {
		// Already present, e.g. the REST send response landed first.
		b.logger.WithFields(logrus.Fields{
			"conversation_id": e.ConversationID,
			"message_id":      e.Message.ID,
		}).Debug("Ignoring duplicate pushed message")
		return
	}

	if e.Message.Inbound(b.selfID) && b.isActive(e.ConversationID) && b.reader != nil {
		go b.reader.MarkConversationRead(ctx, e.ConversationID)
	}
}

func (b *EventBridge) handleState(ctx context.Context, state models.ConnectionState) {
	b.mu.Lock()
	previous := b.connState
	b.connState = state
	watched := make([]string, 0, len(b.active))
	for id := range b.active {
		watched = append(watched, id)
	}
	b.mu.Unlock()

	if b.bus != nil {
		b.bus.Publish(events.Event{
			Kind:            events.KindConnectionStateChanged,
			ConnectionState: state,
		})
	}

	if state != models.ConnectionConnected || previous == models.ConnectionConnected {
		return
	}

	// Reconnected after a gap: missed events are not replayed, so reconcile
	// via REST instead.
	metrics.IncrementCounter("reconnects_total", nil, "Push channel reconnections")
	b.logger.WithField("conversations", len(watched)).Info("Push channel connected, reconciling")
	go func() {
		if b.profiles != nil {
			if err := b.profiles.Refresh(ctx); err != nil {
				b.logger.WithError(err).Warn("Conversation refresh after reconnect failed")
			}
		}
		for _, id := range watched {
			if b.sync != nil {
				if err := b.sync.SyncConversation(ctx, id); err != nil {
					continue
				}
			}
			if b.reader != nil {
				b.reader.MarkConversationRead(ctx, id)
			}
		}
	}()
}
