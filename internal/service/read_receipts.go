package service

import (
	"context"
	"time"

	apperrors "chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/store"
	"chatsync/pkg/chatapi"

	"github.com/sirupsen/logrus"
)

// ReadAckSender publishes read acknowledgments on the push channel so the
// counterpart's outbound copy advances to read.
type ReadAckSender interface {
	SendReadAck(ctx context.Context, conversationID, messageID string) error
}

// ReadReceiptTracker reports unread inbound messages as read. Each message is
// acknowledged independently; partial failure leaves the failed ones unread
// for the next trigger. Failures are never surfaced to the user.
type ReadReceiptTracker struct {
	api    chatapi.Client
	store  *store.Store
	push   ReadAckSender
	logger *logrus.Logger
	selfID string
}

func NewReadReceiptTracker(api chatapi.Client, st *store.Store, push ReadAckSender, selfID string, logger *logrus.Logger) *ReadReceiptTracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &ReadReceiptTracker{
		api:    api,
		store:  st,
		push:   push,
		logger: logger,
		selfID: selfID,
	}
}

// MarkConversationRead acknowledges every unread inbound message in the
// conversation. Local state flips to read optimistically after each
// successful acknowledgment.
func (t *ReadReceiptTracker) MarkConversationRead(ctx context.Context, conversationID string) {
	unread := t.store.Unread(conversationID, t.selfID)
	for i := range unread {
		msg := &unread[i]
		if msg.ID == "" {
			// Not yet confirmed by the server; nothing to acknowledge.
			continue
		}
		if err := t.api.MarkMessageRead(ctx, msg.ID); err != nil {
			// Stays unread; the next trigger retries it.
			apperrors.LogError(t.logger, err, "Failed to mark message read")
			continue
		}
		t.store.Advance(conversationID, msg.ID, models.StateRead, time.Now())

		if t.push != nil {
			if err := t.push.SendReadAck(ctx, conversationID, msg.ID); err != nil {
				t.logger.WithError(err).WithField("message_id", msg.ID).
					Debug("Read ack not sent over push channel")
			}
		}
	}
}
