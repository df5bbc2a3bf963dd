package service

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func seedInbound(t *testing.T, st *store.Store, id string, at time.Time) {
	t.Helper()
	require.True(t, st.Append(&models.Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       "user-2",
		Kind:           models.KindText,
		Payload:        models.TextPayload{Body: "hi"},
		DeliveryState:  models.StateSent,
		CreatedAt:      at,
	}))
}

func TestMarkConversationReadAcksEveryUnread(t *testing.T) {
	st := store.New(nil)
	base := time.Now()
	seedInbound(t, st, "in-1", base)
	seedInbound(t, st, "in-2", base.Add(time.Second))

	api := &mockAPIClient{}
	api.On("MarkMessageRead", mock.Anything, "in-1").Return(nil)
	api.On("MarkMessageRead", mock.Anything, "in-2").Return(nil)

	push := &mockReadAckSender{}
	push.On("SendReadAck", mock.Anything, "conv-1", "in-1").Return(nil)
	push.On("SendReadAck", mock.Anything, "conv-1", "in-2").Return(nil)

	tracker := NewReadReceiptTracker(api, st, push, "user-1", nil)
	tracker.MarkConversationRead(context.Background(), "conv-1")

	assert.Equal(t, 0, st.UnreadCount("conv-1", "user-1"))
	api.AssertExpectations(t)
	push.AssertExpectations(t)
}

func TestMarkConversationReadPartialFailure(t *testing.T) {
	st := store.New(nil)
	base := time.Now()
	seedInbound(t, st, "in-1", base)
	seedInbound(t, st, "in-2", base.Add(time.Second))

	api := &mockAPIClient{}
	api.On("MarkMessageRead", mock.Anything, "in-1").
		Return(apperrors.NewTransportError("mark message read", errors.New("down")))
	api.On("MarkMessageRead", mock.Anything, "in-2").Return(nil)

	tracker := NewReadReceiptTracker(api, st, nil, "user-1", nil)
	tracker.MarkConversationRead(context.Background(), "conv-1")

	// The failed one stays unread for the next trigger.
	unread := st.Unread("conv-1", "user-1")
	require.Len(t, unread, 1)
	assert.Equal(t, "in-1", unread[0].ID)

	// Next trigger retries only the one still unread.
	api2 := &mockAPIClient{}
	api2.On("MarkMessageRead", mock.Anything, "in-1").Return(nil)
	tracker2 := NewReadReceiptTracker(api2, st, nil, "user-1", nil)
	tracker2.MarkConversationRead(context.Background(), "conv-1")

	assert.Equal(t, 0, st.UnreadCount("conv-1", "user-1"))
	api2.AssertExpectations(t)
}

func TestMarkConversationReadSkipsOutbound(t *testing.T) {
	st := store.New(nil)
	require.True(t, st.Append(&models.Message{
		ID:             "out-1",
		ConversationID: "conv-1",
		SenderID:       "user-1",
		Kind:           models.KindText,
		Payload:        models.TextPayload{Body: "mine"},
		DeliveryState:  models.StateSent,
		CreatedAt:      time.Now(),
	}))

	api := &mockAPIClient{}
	tracker := NewReadReceiptTracker(api, st, nil, "user-1", nil)
	tracker.MarkConversationRead(context.Background(), "conv-1")

	api.AssertNotCalled(t, "MarkMessageRead", mock.Anything, mock.Anything)
}

func TestMarkConversationReadPushFailureIsNotFatal(t *testing.T) {
	st := store.New(nil)
	seedInbound(t, st, "in-1", time.Now())

	api := &mockAPIClient{}
	api.On("MarkMessageRead", mock.Anything, "in-1").Return(nil)

	push := &mockReadAckSender{}
	push.On("SendReadAck", mock.Anything, "conv-1", "in-1").Return(errors.New("not connected"))

	tracker := NewReadReceiptTracker(api, st, push, "user-1", nil)
	tracker.MarkConversationRead(context.Background(), "conv-1")

	// The REST ack succeeded, so local state still flips to read.
	assert.Equal(t, 0, st.UnreadCount("conv-1", "user-1"))
}
