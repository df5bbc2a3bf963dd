package service

import (
	"sort"
	"sync"
	"time"

	"chatsync/internal/events"

	"github.com/sirupsen/logrus"
)

// TypingTracker keeps the ephemeral per-conversation typing flags. Flags are
// never persisted and auto-expire when no stop event arrives, so a lost stop
// frame cannot leave a user typing forever.
type TypingTracker struct {
	mu     sync.Mutex
	expiry time.Duration
	bus    *events.Bus
	logger *logrus.Logger
	timers map[string]map[string]*time.Timer
}

func NewTypingTracker(expiry time.Duration, bus *events.Bus, logger *logrus.Logger) *TypingTracker {
	if expiry <= 0 {
		expiry = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TypingTracker{
		expiry: expiry,
		bus:    bus,
		logger: logger,
		timers: make(map[string]map[string]*time.Timer),
	}
}

// Set records a typing start or stop for a user in a conversation.
func (t *TypingTracker) Set(conversationID, userID string, isTyping bool) {
	t.mu.Lock()
	byUser, ok := t.timers[conversationID]
	if !ok {
		byUser = make(map[string]*time.Timer)
		t.timers[conversationID] = byUser
	}

	if timer, exists := byUser[userID]; exists {
		timer.Stop()
		delete(byUser, userID)
	}

	if isTyping {
		byUser[userID] = time.AfterFunc(t.expiry, func() {
			t.expire(conversationID, userID)
		})
	}
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Publish(events.Event{
			Kind:           events.KindTypingChanged,
			ConversationID: conversationID,
			UserID:         userID,
			IsTyping:       isTyping,
		})
	}
}

func (t *TypingTracker) expire(conversationID, userID string) {
	t.mu.Lock()
	byUser, ok := t.timers[conversationID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if _, exists := byUser[userID]; !exists {
		t.mu.Unlock()
		return
	}
	delete(byUser, userID)
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"user_id":         userID,
	}).Debug("Typing flag expired without stop event")

	if t.bus != nil {
		t.bus.Publish(events.Event{
			Kind:           events.KindTypingChanged,
			ConversationID: conversationID,
			UserID:         userID,
			IsTyping:       false,
		})
	}
}

// Typing returns the users currently typing in a conversation.
func (t *TypingTracker) Typing(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	byUser, ok := t.timers[conversationID]
	if !ok {
		return nil
	}
	users := make([]string, 0, len(byUser))
	for userID := range byUser {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}
