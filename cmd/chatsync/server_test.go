package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatsync/internal/models"
	"chatsync/internal/service"
	"chatsync/internal/store"
	"chatsync/pkg/chatapi"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAPI struct{}

func (stubAPI) SendMessage(ctx context.Context, req chatapi.SendMessageRequest) (*models.Message, error) {
	return &models.Message{ID: "srv-stub", Payload: models.TextPayload{Body: req.Content}}, nil
}
func (stubAPI) FetchMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	return nil, nil
}
func (stubAPI) MarkMessageRead(ctx context.Context, messageID string) error { return nil }
func (stubAPI) FetchConversations(ctx context.Context) ([]*models.Conversation, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st := store.New(nil)
	agg := service.NewConversationAggregator(stubAPI{}, st, nil, "user-1", nil)
	pipeline := service.NewSendPipeline(stubAPI{}, nil, st, "user-1", time.Hour, nil)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(st, agg, pipeline, logger), st
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "uptime_seconds")
	assert.Contains(t, body, "counters")
}

func TestDebugConversationsEndpoint(t *testing.T) {
	s, st := newTestServer(t)

	require.True(t, st.Append(&models.Message{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "user-2",
		Kind:           models.KindText,
		Payload:        models.TextPayload{Body: "hi"},
		DeliveryState:  models.StateSent,
		CreatedAt:      time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/debug/conversations", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var convs []models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "conv-1", convs[0].ID)
	assert.Equal(t, 1, convs[0].UnreadCount)
}

func TestDebugMessagesEndpoint(t *testing.T) {
	s, st := newTestServer(t)

	require.True(t, st.Append(&models.Message{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "user-2",
		Kind:           models.KindText,
		Payload:        models.TextPayload{Body: "hi"},
		DeliveryState:  models.StateSent,
		CreatedAt:      time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/debug/conversations/conv-1/messages", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/debug/conversations/conv-unknown/messages", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugSendMessageEndpoint(t *testing.T) {
	s, st := newTestServer(t)

	body := strings.NewReader(`{"receiver_id": "user-2", "body": "hello from debug"}`)
	req := httptest.NewRequest(http.MethodPost, "/debug/conversations/conv-1/messages", body)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		ProvisionalID string `json:"provisional_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ProvisionalID)

	msg, ok := st.Get("conv-1", resp.ProvisionalID)
	require.True(t, ok)
	assert.Equal(t, models.TextPayload{Body: "hello from debug"}, msg.Payload)
}

func TestDebugSendMessageBadBody(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/debug/conversations/conv-1/messages", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugRetryEndpointRejectsNonFailed(t *testing.T) {
	s, st := newTestServer(t)

	require.True(t, st.Append(&models.Message{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "user-1",
		Kind:           models.KindText,
		Payload:        models.TextPayload{Body: "fine"},
		DeliveryState:  models.StateSent,
		CreatedAt:      time.Now(),
	}))

	req := httptest.NewRequest(http.MethodPost, "/debug/conversations/conv-1/messages/m1/retry", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
