package service

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "chatsync/internal/errors"
	"chatsync/internal/events"
	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/store"
	"chatsync/pkg/chatapi"

	"github.com/sirupsen/logrus"
)

// ConversationAggregator maintains the conversation list sorted by recency.
// Unread counts are always recomputed from the message store rather than
// incremented in place, so drift from missed events cannot accumulate.
// It subscribes to store changes, which gives it the same serialized
// mutation path as the store itself.
type ConversationAggregator struct {
	api    chatapi.Client
	store  *store.Store
	bus    *events.Bus
	logger *logrus.Logger
	selfID string

	mu    sync.Mutex
	convs map[string]*models.Conversation
}

func NewConversationAggregator(api chatapi.Client, st *store.Store, bus *events.Bus, selfID string, logger *logrus.Logger) *ConversationAggregator {
	if logger == nil {
		logger = logrus.New()
	}
	a := &ConversationAggregator{
		api:    api,
		store:  st,
		bus:    bus,
		logger: logger,
		selfID: selfID,
		convs:  make(map[string]*models.Conversation),
	}
	st.Subscribe(a.onStoreChange)
	return a
}

func (a *ConversationAggregator) onStoreChange(change store.Change) {
	if change.ConversationID == "" {
		return
	}
	a.Recompute(change.ConversationID)
}

// Recompute rebuilds a conversation's lastMessage and unreadCount from the
// message store.
func (a *ConversationAggregator) Recompute(conversationID string) {
	last, hasLast := a.store.LastMessage(conversationID)
	unread := a.store.UnreadCount(conversationID, a.selfID)

	a.mu.Lock()
	conv, ok := a.convs[conversationID]
	if !ok {
		conv = &models.Conversation{ID: conversationID}
		a.convs[conversationID] = conv
	}
	conv.UnreadCount = unread
	if hasLast {
		copied := last
		conv.LastMessage = &copied
		if last.CreatedAt.After(conv.UpdatedAt) {
			conv.UpdatedAt = last.CreatedAt
		}
	}
	snapshot := *conv
	a.mu.Unlock()

	if a.bus != nil {
		a.bus.Publish(events.Event{
			Kind:           events.KindConversationBumped,
			ConversationID: conversationID,
			Conversation:   &snapshot,
		})
	}
}

// Refresh reloads conversation summaries from the backend and merges them
// with store-derived state. Store-held conversations keep their recomputed
// unread counts; summaries for conversations without loaded history take the
// server's count.
func (a *ConversationAggregator) Refresh(ctx context.Context) error {
	start := time.Now()
	fetched, err := a.api.FetchConversations(ctx)
	metrics.RecordTimer("conversations_refresh", time.Since(start))
	if err != nil {
		apperrors.LogError(a.logger, err, "Conversation list refresh failed")
		return err
	}

	a.mu.Lock()
	for _, remote := range fetched {
		conv, ok := a.convs[remote.ID]
		if !ok {
			copied := *remote
			a.convs[remote.ID] = &copied
			continue
		}
		conv.OtherParticipant = remote.OtherParticipant
		if remote.UpdatedAt.After(conv.UpdatedAt) {
			conv.UpdatedAt = remote.UpdatedAt
		}
		if conv.LastMessage == nil {
			conv.LastMessage = remote.LastMessage
		}
		if len(a.store.Messages(remote.ID)) == 0 {
			conv.UnreadCount = remote.UnreadCount
		}
	}
	a.mu.Unlock()

	// Store-backed conversations override the cached server counts.
	for _, id := range a.store.Conversations() {
		a.Recompute(id)
	}
	return nil
}

// UpdateProfile refreshes display metadata for the matching participant
// without touching messages or ordering.
func (a *ConversationAggregator) UpdateProfile(profile models.Profile) {
	a.mu.Lock()
	var touched []string
	for id, conv := range a.convs {
		if conv.OtherParticipant.UserID == profile.UserID {
			conv.OtherParticipant = profile
			touched = append(touched, id)
		}
	}
	a.mu.Unlock()

	if a.bus != nil {
		for _, id := range touched {
			a.bus.Publish(events.Event{
				Kind:           events.KindProfileUpdated,
				ConversationID: id,
				Profile:        &profile,
			})
		}
	}
}

// List returns the conversations sorted descending by recency.
func (a *ConversationAggregator) List() []models.Conversation {
	a.mu.Lock()
	out := make([]models.Conversation, 0, len(a.convs))
	for _, conv := range a.convs {
		out = append(out, *conv)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RecencyKey().After(out[j].RecencyKey())
	})
	return out
}

// Get returns one conversation summary.
func (a *ConversationAggregator) Get(conversationID string) (models.Conversation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	conv, ok := a.convs[conversationID]
	if !ok {
		return models.Conversation{}, false
	}
	return *conv, true
}
