package events

import (
	"testing"

	"chatsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe(4)

	bus.Publish(Event{Kind: KindMessageAppended, ConversationID: "conv-1"})

	ev := <-sub
	assert.Equal(t, KindMessageAppended, ev.Kind)
	assert.Equal(t, "conv-1", ev.ConversationID)
}

func TestSubscribeFiltersByKind(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe(4, KindTypingChanged)

	bus.Publish(Event{Kind: KindMessageAppended, ConversationID: "conv-1"})
	bus.Publish(Event{Kind: KindTypingChanged, ConversationID: "conv-1", UserID: "user-2", IsTyping: true})

	ev := <-sub
	assert.Equal(t, KindTypingChanged, ev.Kind)

	select {
	case extra := <-sub:
		t.Fatalf("filtered subscriber received %s", extra.Kind)
	default:
	}
}

func TestPublishFansOut(t *testing.T) {
	bus := NewBus(nil)
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Publish(Event{Kind: KindConnectionStateChanged, ConnectionState: models.ConnectionConnected})

	require.Equal(t, KindConnectionStateChanged, (<-a).Kind)
	require.Equal(t, KindConnectionStateChanged, (<-b).Kind)
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe(1)

	bus.Publish(Event{Kind: KindMessageAppended, ConversationID: "a"})
	// Buffer is full; this one is dropped instead of blocking the publisher.
	bus.Publish(Event{Kind: KindMessageAppended, ConversationID: "b"})

	ev := <-sub
	assert.Equal(t, "a", ev.ConversationID)
	select {
	case <-sub:
		t.Fatal("overflow event should have been dropped")
	default:
	}
}
