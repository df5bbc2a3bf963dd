package service

import (
	"context"
	"time"

	apperrors "chatsync/internal/errors"
	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/store"
	"chatsync/pkg/chatapi"

	"github.com/sirupsen/logrus"
)

// HistoryCache persists conversation history locally for warm starts.
type HistoryCache interface {
	SaveMessages(ctx context.Context, conversationID string, msgs []models.Message) error
	LoadMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
}

// Syncer reconciles the message store with the backend's history. A fetch is
// always merged against the store, never blindly applied, so pending local
// sends survive a concurrent refresh.
type Syncer struct {
	api    chatapi.Client
	store  *store.Store
	cache  HistoryCache
	logger *logrus.Logger
}

func NewSyncer(api chatapi.Client, st *store.Store, cache HistoryCache, logger *logrus.Logger) *Syncer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Syncer{api: api, store: st, cache: cache, logger: logger}
}

// SyncConversation fetches the full history and merges it into the store.
func (s *Syncer) SyncConversation(ctx context.Context, conversationID string) error {
	start := time.Now()
	fetched, err := s.api.FetchMessages(ctx, conversationID)
	metrics.RecordTimer("messages_fetch", time.Since(start))
	if err != nil {
		apperrors.LogError(s.logger, err, "History fetch failed")
		return err
	}

	s.store.MergeHistory(conversationID, fetched)

	if s.cache != nil {
		snapshot := s.store.Messages(conversationID)
		if err := s.cache.SaveMessages(ctx, conversationID, snapshot); err != nil {
			// Cache writes are best effort; the in-memory store is authoritative.
			apperrors.LogError(s.logger, err, "Failed to cache conversation history")
		}
	}
	return nil
}

// WarmStart seeds the store from the local cache before the first fetch.
func (s *Syncer) WarmStart(ctx context.Context, conversationID string) error {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.LoadMessages(ctx, conversationID)
	if err != nil {
		apperrors.LogError(s.logger, err, "Failed to load cached history")
		return err
	}
	if len(cached) == 0 {
		return nil
	}
	s.store.MergeHistory(conversationID, cached)
	s.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"messages":        len(cached),
	}).Debug("Warm started conversation from cache")
	return nil
}
