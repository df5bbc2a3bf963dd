package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatsync/internal/models"
	"chatsync/internal/retry"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticToken(token string) TokenProvider {
	return func() (string, error) { return token, nil }
}

func newTestClient() *Client {
	return NewClient(Config{URL: "ws://unused"}, staticToken("t"), nil)
}

func rawEnvelope(t *testing.T, event string, data interface{}) Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Envelope{Event: event, Data: raw}
}

func TestDispatchNewMessage(t *testing.T) {
	c := newTestClient()
	now := time.Now().UTC()

	c.dispatch(rawEnvelope(t, models.PushEventNewMessage, newMessageData{
		ConversationID: "conv-1",
		Message: models.WireMessage{
			ID:          "srv-1",
			ChatID:      "conv-1",
			SenderID:    "user-2",
			Content:     "hello",
			MessageType: "text",
			CreatedAt:   now,
		},
	}))

	select {
	case ev := <-c.Events():
		msg, ok := ev.(models.NewMessageEvent)
		require.True(t, ok)
		assert.Equal(t, "conv-1", msg.ConversationID)
		assert.Equal(t, "srv-1", msg.Message.ID)
		assert.Equal(t, models.TextPayload{Body: "hello"}, msg.Message.Payload)
	default:
		t.Fatal("no event emitted")
	}
}

func TestDispatchTyping(t *testing.T) {
	c := newTestClient()

	c.dispatch(rawEnvelope(t, models.PushEventUserTyping, typingData{ConversationID: "conv-1", UserID: "user-2"}))
	c.dispatch(rawEnvelope(t, models.PushEventUserStopped, typingData{ConversationID: "conv-1", UserID: "user-2"}))

	start := (<-c.Events()).(models.TypingEvent)
	assert.True(t, start.IsTyping)
	stop := (<-c.Events()).(models.TypingEvent)
	assert.False(t, stop.IsTyping)
	assert.Equal(t, "user-2", stop.UserID)
}

func TestDispatchMessageRead(t *testing.T) {
	c := newTestClient()

	c.dispatch(rawEnvelope(t, models.PushEventMessageRead, messageReadData{
		ConversationID: "conv-1",
		MessageID:      "srv-1",
		ReaderID:       "user-2",
	}))

	ev := (<-c.Events()).(models.MessageReadEvent)
	assert.Equal(t, "srv-1", ev.MessageID)
	assert.Equal(t, "user-2", ev.ReaderID)
}

func TestDispatchProfileUpdated(t *testing.T) {
	c := newTestClient()

	c.dispatch(rawEnvelope(t, models.PushEventProfileUpdated, models.Profile{UserID: "user-2", Username: "sam"}))

	ev := (<-c.Events()).(models.ProfileUpdatedEvent)
	assert.Equal(t, "sam", ev.Profile.Username)
}

func TestDispatchDropsMalformedFrames(t *testing.T) {
	c := newTestClient()

	c.dispatch(Envelope{Event: models.PushEventNewMessage, Data: json.RawMessage(`not json`)})
	c.dispatch(Envelope{Event: models.PushEventMessageRead, Data: json.RawMessage(`[1,2]`)})
	c.dispatch(Envelope{Event: "unknown_event", Data: json.RawMessage(`{}`)})

	select {
	case ev := <-c.Events():
		t.Fatalf("malformed frames must be dropped, got %T", ev)
	default:
	}
}

func TestDispatchDropsUndecodableMessage(t *testing.T) {
	c := newTestClient()

	c.dispatch(rawEnvelope(t, models.PushEventNewMessage, newMessageData{
		ConversationID: "conv-1",
		Message:        models.WireMessage{ID: "srv-1", MessageType: "sticker"},
	}))

	select {
	case <-c.Events():
		t.Fatal("undecodable message kinds must be dropped")
	default:
	}
}

func TestWriteWhenNotConnected(t *testing.T) {
	c := newTestClient()
	err := c.SendTyping(context.Background(), "conv-1", true)
	assert.Error(t, err)
	err = c.SendReadAck(context.Background(), "conv-1", "srv-1")
	assert.Error(t, err)
}

func TestRunAuthenticatesAndDelivers(t *testing.T) {
	received := make(chan Envelope, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		var auth Envelope
		require.NoError(t, wsjson.Read(ctx, conn, &auth))
		received <- auth

		env := rawEnvelope(t, models.PushEventNewMessage, newMessageData{
			ConversationID: "conv-1",
			Message: models.WireMessage{
				ID:          "srv-1",
				ChatID:      "conv-1",
				SenderID:    "user-2",
				Content:     "hello",
				MessageType: "text",
				CreatedAt:   time.Now().UTC(),
			},
		})
		require.NoError(t, wsjson.Write(ctx, conn, env))

		// Hold the connection open until the test finishes.
		wsjson.Read(ctx, conn, &Envelope{})
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	c := NewClient(Config{
		URL:       wsURL,
		Reconnect: retry.BackoffConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2.0},
	}, staticToken("secret"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case auth := <-received:
		assert.Equal(t, models.PushEventAuthenticate, auth.Event)
		var data authData
		require.NoError(t, json.Unmarshal(auth.Data, &data))
		assert.Equal(t, "secret", data.Token)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the authenticate frame")
	}

	require.Eventually(t, func() bool {
		select {
		case state := <-c.States():
			return state == models.ConnectionConnected
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case ev := <-c.Events():
		msg, ok := ev.(models.NewMessageEvent)
		require.True(t, ok)
		assert.Equal(t, "srv-1", msg.Message.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("pushed message never delivered")
	}
}

func TestRunReportsReconnecting(t *testing.T) {
	// Dial target refuses connections.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	c := NewClient(Config{
		URL:       wsURL,
		Reconnect: retry.BackoffConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2.0},
	}, staticToken("t"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case state := <-c.States():
		assert.Equal(t, models.ConnectionReconnecting, state)
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnecting state reported")
	}
}
